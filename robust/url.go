package robust

import "net/url"

// attemptURL appends the robust-ID query parameter to base: "n" on the
// very first physical-connection attempt a logical connection ever
// makes, "o" (resume) on every attempt after that.
func attemptURL(base, robustID string, first bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	q := u.Query()
	if first {
		q.Set("n", robustID)
	} else {
		q.Set("o", robustID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
