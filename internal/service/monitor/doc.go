// Package monitor runs the agent: it polls the sensor and, when the
// temperature crosses the trigger threshold, captures an image, asks the
// inference service for detections, annotates the capture and forwards a
// filtered alert to the cloud before cooling down.
//
// Loop is the state machine; Run wires it to the configured devices,
// services and side servers.
package monitor
