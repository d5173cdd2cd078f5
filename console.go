package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/semihalev/zlog/v2"

	"github.com/dnsgate/dnsgate/server"
)

// console reads admin verbs from stdin until EOF or exit.
func console(srv *server.Server) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "":
		case "reload":
			if err := srv.Reload(); err != nil {
				zlog.Error("Reload failed", "error", err.Error())
				continue
			}
			zlog.Info("Rules reloaded, cache reset")
		case "ef":
			srv.SetFiltering(true)
		case "df":
			srv.SetFiltering(false)
		case "eh":
			srv.SetHeuristics(true)
		case "dh":
			srv.SetHeuristics(false)
		case "dump":
			if err := srv.DumpCache(); err != nil {
				zlog.Error("Cache dump failed", "error", err.Error())
			}
		case "exit", "quit":
			srv.Finish()
			return
		default:
			zlog.Warn("Unknown console command", "commands", "reload ef df eh dh dump exit")
		}
	}
}
