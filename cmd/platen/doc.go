// Command platen is the command-line interface for the sheet-processing
// queue: enqueue scans, inspect and repair the queue, review batch
// summaries, and manage configuration.
package main
