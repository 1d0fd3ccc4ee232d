// Package buffer implements the MessageBuffer component.
//
// The MessageBuffer:
//   - Tags outbound payloads with monotonic, contiguous ids
//   - Renders wire messages as "<HEXID>|<payload>"
//   - Discards records up to an acknowledged boundary
//   - Replays records from a resume boundary, in order
package buffer
