// Package logx is tgnotify's structured logging, a thin layer over zerolog.
//
// Console output uses a short timestamp and a file:line caller; file output
// is JSON. A Service can be reconfigured at runtime and every Logger derived
// from it follows.
package logx
