// Package sentinel contains the core domain types of the monitoring agent.
//
// It defines Reading (one sensor poll), CaptureArtifact (one camera shot),
// Detection (one object proposal from the inference service), AbsoluteBox,
// AlertRecord (the canonical alert forwarded to the cloud) and the error
// taxonomy shared by every pipeline stage.
package sentinel
