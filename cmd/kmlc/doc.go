// Package main hosts the kmlc CLI entrypoint and command graph.
//
// Commands are thin: each one resolves configuration, opens the local
// credential store, asks the session guard whether it may run, and then hands
// off to the jobs tracker or the API client. Admission failures surface as an
// error that names the command to run next (`kmlc login` or `kmlc passwd`).
package main
