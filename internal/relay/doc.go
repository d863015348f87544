// Package relay supervises the ffmpeg process that copies the source feed to
// the destination ingest.
//
// A Supervisor keeps at most one relay alive, classifies its diagnostic
// output, restarts it a bounded number of times on abnormal exit and stops it
// by signalling the whole process group.
package relay
