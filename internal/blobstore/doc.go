// Package blobstore provides the binary stores the pdfjobs daemon reads
// inputs from and uploads results to: FileStore on a local directory and
// PGStore in a PostgreSQL table.
package blobstore
