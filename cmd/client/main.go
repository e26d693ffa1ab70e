package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pyropy/dsn/lib/logger"
)

var log, _ = logger.New("client")

func main() {
	app := &cli.App{
		Name:  "dsn",
		Usage: "upload shards and inspect audits",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Value:   "localhost:1234",
				Usage:   "Address of the bridge rpc server",
				EnvVars: []string{"BRIDGE_ADDR"},
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Value:   "localhost:6379",
				Usage:   "Address of the audit queue redis",
				EnvVars: []string{"REDIS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "namespace",
				Value:   "audits",
				Usage:   "Audit queue namespace",
				EnvVars: []string{"QUEUE_NAMESPACE"},
			},
		},
		Commands: []*cli.Command{
			uploadCmd,
			auditCmd,
			contactsCmd,
			resultsCmd,
			queueCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalw("client", "error", err)
	}
}
