package main

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/pyropy/dsn/core/client"
	"github.com/pyropy/dsn/core/queue"
	"github.com/pyropy/dsn/rpc/bridge"
	"github.com/pyropy/dsn/rpc/farmer"
)

func newClient(ctx *cli.Context) *client.Client {
	return client.NewClient(bridge.NewClient(ctx.String("rpc-url")), farmer.NewClient(), log)
}

func openQueue(ctx *cli.Context, worker string) (*queue.RedisStore, func() error) {
	rdb := redis.NewClient(&redis.Options{Addr: ctx.String("redis-addr")})
	return queue.NewRedisStore(rdb, ctx.String("namespace"), worker), rdb.Close
}

var uploadCmd = &cli.Command{
	Name:  "upload",
	Usage: "Upload a file as a shard and contract it with farmers",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "file",
			Required: true,
			Usage:    "Path to file you want to store",
		},
		&cli.IntFlag{
			Name:  "challenges",
			Value: client.DefaultChallenges,
			Usage: "Number of audit challenges to prepare",
		},
	},
	Action: func(ctx *cli.Context) error {
		res, err := newClient(ctx).UploadFile(ctx.Context, ctx.String("file"), ctx.Int("challenges"))
		if res.ShardHash != "" {
			fmt.Println("shard", res.ShardHash)
		}
		for _, p := range res.Stored {
			fmt.Println("stored", p.FarmerID, p.Address, "contract", p.ContractID)
		}
		for _, p := range res.Failed {
			fmt.Println("failed", p.FarmerID, p.Address)
		}

		return err
	},
}

var auditCmd = &cli.Command{
	Name:  "audit",
	Usage: "Schedule an audit of every copy of a shard",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "shard",
			Required: true,
			Usage:    "Hash of the shard to audit",
		},
	},
	Action: func(ctx *cli.Context) error {
		items, err := newClient(ctx).Audit(ctx.Context, ctx.String("shard"))
		if err != nil {
			return err
		}

		for _, item := range items {
			fmt.Println(item.ID, "farmer", item.Farmer, "index", item.Index)
		}
		return nil
	},
}

var contactsCmd = &cli.Command{
	Name:  "contacts",
	Usage: "List known farmers",
	Action: func(ctx *cli.Context) error {
		contacts, err := newClient(ctx).Contacts(ctx.Context)
		if err != nil {
			return err
		}

		for _, c := range contacts {
			fmt.Println(c.ID, c.Address, "lastSeen", c.LastSeen.Format(time.RFC3339))
		}
		return nil
	},
}

var resultsCmd = &cli.Command{
	Name:  "results",
	Usage: "Print committed audit results",
	Action: func(ctx *cli.Context) error {
		store, closeFn := openQueue(ctx, "")
		defer closeFn()

		for record, err := range store.Results(ctx.Context) {
			if err != nil {
				return err
			}
			fmt.Println(record.Item.ID, "shard", record.Item.Hash, "farmer", record.Item.Farmer, "result", record.Result, record.Reason)
		}
		return nil
	},
}

var queueCmd = &cli.Command{
	Name:  "queue",
	Usage: "Print audit queue partition lengths",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "worker",
			Usage: "Worker whose pending partition to inspect",
		},
	},
	Action: func(ctx *cli.Context) error {
		store, closeFn := openQueue(ctx, ctx.String("worker"))
		defer closeFn()

		for _, p := range []queue.Partition{queue.Pending, queue.Ready, queue.Final} {
			n, err := store.Len(ctx.Context, p)
			if err != nil {
				return err
			}
			fmt.Println(p, n)
		}
		return nil
	},
}
