// Command miner connects to a coordinator and runs the state machine of
// §4.7: it mines on request, votes on candidates it's asked to verify,
// and applies accepted blocks, all driven by the inbound message loop
// while a small foreground REPL reports status.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/logger"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/miner"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/netio"
)

var (
	configFile     string
	coordinatorAdd string
	logLevel       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "miner",
		Short: "miner connects to a coordinator and mines, votes, and tracks the chain",
		RunE:  runMiner,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&coordinatorAdd, "coordinator", "localhost:65432", "coordinator address to connect to")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runMiner(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if v := viper.GetString("coordinator"); v != "" {
		coordinatorAdd = v
	}
	if v := viper.GetString("log_level"); v != "" {
		logLevel = v
	}

	conn, err := net.Dial("tcp", coordinatorAdd)
	if err != nil {
		return fmt.Errorf("connecting to coordinator at %s: %w", coordinatorAdd, err)
	}
	peer := netio.NewPeer(conn)

	log := logger.NewLogger(&logger.Config{
		Level:  parseLevel(logLevel),
		Prefix: "miner-" + peer.ID[:8],
		Output: os.Stdout,
	})

	m, err := miner.New(miner.Config{Peer: peer, Logger: log})
	if err != nil {
		return fmt.Errorf("initializing miner: %w", err)
	}
	log.Info("connected to coordinator at %s, pubkey %s", coordinatorAdd, m.Pubkey()[:16])

	go func() {
		for {
			env, err := peer.Recv()
			if err != nil {
				log.Error("connection to coordinator lost: %v", err)
				return
			}
			if err := m.HandleMessage(env); err != nil {
				log.Error("handling %s message: %v", env.Type, err)
			}
		}
	}()

	return repl(m, peer, log)
}

func repl(m *miner.Miner, peer *netio.Peer, log *logger.Logger) error {
	fmt.Println("commands: status, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "status":
			fmt.Printf("state: %s, chain length: %d, pool size: %d\n",
				m.State(), m.Chain().Len(), m.Pool().Len())
		case "quit", "exit":
			_ = peer.Send(netio.Envelope{Type: netio.TypeCloseConnection})
			_ = peer.Close()
			return nil
		case "":
			// ignore blank lines
		default:
			fmt.Println("unrecognized command")
		}
	}
}

func loadConfig() error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func parseLevel(s string) logger.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logger.DEBUG
	case "warn":
		return logger.WARN
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}
