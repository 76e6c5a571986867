// Command bankctl is an operator tool for driving a ledger bank outside of
// any networking or consensus path: load a genesis config, advance ticks,
// submit a batch of transactions from a file, and inspect account state.
// It is deliberately not a wallet — it holds no keys and never signs.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/xbee/solana/core/bank"
	"github.com/xbee/solana/core/types"
	"github.com/xbee/solana/internal/snapshot"
)

var log = logrus.WithField("component", "bankctl")

func main() {
	app := &cli.App{
		Name:  "bankctl",
		Usage: "inspect and drive a ledger bank from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "snapshot",
				Usage: "path to the bbolt snapshot database",
				Value: "bankctl.snapshot",
			},
			&cli.StringFlag{
				Name:  "genesis",
				Usage: "path to a genesis config JSON file",
			},
		},
		Commands: []*cli.Command{
			genesisCommand,
			tickCommand,
			submitCommand,
			balanceCommand,
			squashCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("bankctl failed")
	}
}

// genesisJSON mirrors bank.GenesisConfig for JSON input, keeping pubkeys as
// plain strings rather than byte arrays: parsePubkey copies a string's raw
// bytes into the key (truncated to 32, zero-padded), and genesis_hash is the
// hash of its string's bytes. Neither is hex-decoded.
type genesisJSON struct {
	Mint                    string           `json:"mint"`
	Lamports                types.Lamport    `json:"lamports"`
	BootstrapLeader         string           `json:"bootstrap_leader"`
	BootstrapLeaderLamports types.Lamport    `json:"bootstrap_leader_lamports"`
	SystemProgramID         string           `json:"system_program_id"`
	BPFLoaderID             string           `json:"bpf_loader_id"`
	VoteProgramID           string           `json:"vote_program_id"`
	TicksPerSlot            uint64           `json:"ticks_per_slot"`
	SlotsPerEpoch           uint64           `json:"slots_per_epoch"`
	StakersSlotOffset       uint64           `json:"stakers_slot_offset"`
	Warmup                  bool             `json:"warmup"`
	GenesisHash             string           `json:"genesis_hash"`
}

func parsePubkey(s string) (types.Pubkey, error) {
	var pk types.Pubkey
	b := []byte(s)
	if len(b) > types.PubkeySize {
		b = b[:types.PubkeySize]
	}
	copy(pk[:], b)
	return pk, nil
}

func loadGenesis(path string) (bank.GenesisConfig, error) {
	var gj genesisJSON
	raw, err := os.ReadFile(path)
	if err != nil {
		return bank.GenesisConfig{}, fmt.Errorf("read genesis file: %w", err)
	}
	if err := json.Unmarshal(raw, &gj); err != nil {
		return bank.GenesisConfig{}, fmt.Errorf("parse genesis file: %w", err)
	}

	mint, _ := parsePubkey(gj.Mint)
	leader, _ := parsePubkey(gj.BootstrapLeader)
	sysProg, _ := parsePubkey(gj.SystemProgramID)
	bpfLoader, _ := parsePubkey(gj.BPFLoaderID)
	voteProg, _ := parsePubkey(gj.VoteProgramID)
	hash := types.HashFromBytes([]byte(gj.GenesisHash))

	return bank.GenesisConfig{
		Mint:                    mint,
		Lamports:                gj.Lamports,
		BootstrapLeader:         leader,
		BootstrapLeaderLamports: gj.BootstrapLeaderLamports,
		SystemProgramID:         sysProg,
		BPFLoaderID:             bpfLoader,
		VoteProgramID:           voteProg,
		TicksPerSlot:            gj.TicksPerSlot,
		SlotsPerEpoch:           gj.SlotsPerEpoch,
		StakersSlotOffset:       gj.StakersSlotOffset,
		Warmup:                  gj.Warmup,
		GenesisHash:             hash,
	}, nil
}

var genesisCommand = &cli.Command{
	Name:  "genesis",
	Usage: "construct a genesis bank and save it to the snapshot database",
	Action: func(c *cli.Context) error {
		genesisPath := c.String("genesis")
		if genesisPath == "" {
			return cli.Exit("missing --genesis", 1)
		}
		cfg, err := loadGenesis(genesisPath)
		if err != nil {
			return err
		}
		b := bank.New(cfg)

		store, err := snapshot.Open(c.String("snapshot"))
		if err != nil {
			return err
		}
		defer store.Close()

		b.Freeze()
		if err := store.SaveRoot(b); err != nil {
			return fmt.Errorf("save genesis snapshot: %w", err)
		}
		fmt.Printf("genesis written at slot %d, hash %s\n", b.Slot(), mustHash(b))
		return nil
	},
}

var tickCommand = &cli.Command{
	Name:      "tick",
	Usage:     "advance the loaded bank by N ticks (tick state is not saved)",
	ArgsUsage: "N",
	Action: func(c *cli.Context) error {
		n := 1
		if c.Args().Len() > 0 {
			fmt.Sscanf(c.Args().First(), "%d", &n)
		}

		store, err := snapshot.Open(c.String("snapshot"))
		if err != nil {
			return err
		}
		defer store.Close()

		cfg, err := loadGenesis(c.String("genesis"))
		if err != nil {
			return err
		}
		b := bank.New(cfg)
		if err := store.LoadInto(b); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}

		for i := 0; i < n; i++ {
			h := types.HashFromBytes([]byte(fmt.Sprintf("tick-%d-%d", b.Slot(), i)))
			b.RegisterTick(h)
		}

		fmt.Printf("advanced %d ticks\n", n)
		return nil
	},
}

var submitCommand = &cli.Command{
	Name:      "submit",
	Usage:     "submit a batch of transactions loaded from a JSON file",
	ArgsUsage: "batch.json",
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return cli.Exit("missing batch file argument", 1)
		}
		raw, err := os.ReadFile(c.Args().First())
		if err != nil {
			return fmt.Errorf("read batch file: %w", err)
		}
		var txs []*types.Transaction
		if err := json.Unmarshal(raw, &txs); err != nil {
			return fmt.Errorf("parse batch file: %w", err)
		}

		store, err := snapshot.Open(c.String("snapshot"))
		if err != nil {
			return err
		}
		defer store.Close()

		cfg, err := loadGenesis(c.String("genesis"))
		if err != nil {
			return err
		}
		b := bank.New(cfg)
		if err := store.LoadInto(b); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}

		results := b.ProcessTransactions(txs)
		for i, r := range results {
			if r.Err != nil {
				fmt.Printf("tx[%d]: error: %v\n", i, r.Err)
			} else {
				fmt.Printf("tx[%d]: ok\n", i)
			}
		}

		b.Squash()
		if err := store.SaveRoot(b); err != nil {
			return fmt.Errorf("save snapshot after batch: %w", err)
		}
		return nil
	},
}

var balanceCommand = &cli.Command{
	Name:      "balance",
	Usage:     "print an account's lamport balance",
	ArgsUsage: "pubkey",
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return cli.Exit("missing pubkey argument", 1)
		}
		key, err := parsePubkey(c.Args().First())
		if err != nil {
			return err
		}

		store, err := snapshot.Open(c.String("snapshot"))
		if err != nil {
			return err
		}
		defer store.Close()

		cfg, err := loadGenesis(c.String("genesis"))
		if err != nil {
			return err
		}
		b := bank.New(cfg)
		if err := store.LoadInto(b); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}

		fmt.Printf("%d\n", b.GetBalance(key))
		return nil
	},
}

var squashCommand = &cli.Command{
	Name:  "squash",
	Usage: "freeze and squash the loaded bank, then re-save",
	Action: func(c *cli.Context) error {
		store, err := snapshot.Open(c.String("snapshot"))
		if err != nil {
			return err
		}
		defer store.Close()

		cfg, err := loadGenesis(c.String("genesis"))
		if err != nil {
			return err
		}
		b := bank.New(cfg)
		if err := store.LoadInto(b); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}

		b.Squash()
		if err := store.SaveRoot(b); err != nil {
			return fmt.Errorf("save snapshot after squash: %w", err)
		}
		return nil
	},
}

func mustHash(b *bank.Bank) string {
	h, _ := b.Hash()
	return h.Short()
}
