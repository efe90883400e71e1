// Package artifact implements local persistence for captured images.
//
// The FileRepository stores the raw capture as img_<timestamp>.jpg and the
// annotated copy as img_<timestamp>-op.jpg in the configured output directory.
package artifact
