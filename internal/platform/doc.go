package platform

// Package platform contains input and filesystem glue: recognizing the
// platform's URL shapes in pasted lines, sanitizing file names, and committing
// finished files into the download folder without overwriting.
