// Package logs reads the blurchain log file for the CLI "logs" command.
//
// Last returns the final lines of the file with bounded memory, Follow polls
// for appended lines, and RunFilter narrows either to the lines of a single
// pipeline run in console or JSON format.
package logs
