// Package internaldefs holds the metric names and bucket boundaries shared by
// the exporters.
//
// Counter and histogram definitions live here so that both the Prometheus and
// OTel exporters publish identical names. Changing a definition changes every
// exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
