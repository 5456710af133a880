// Package logging provides structured logging using uber/zap: JSON
// output in production, colored console output in development.
package logging
