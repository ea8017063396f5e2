// Command coordinator runs the round-engine process of §4.2: it listens
// for miner connections on a TCP address and offers a minimal REPL
// standing in for the interactive shell spec §1 scopes out of this
// repository, the way the teacher's cmd/gochain/main.go drives a node from
// cobra-parsed flags plus a foreground command loop.
//
// Grounded on original_source/zhijie/master.py's run() loop (a blocking
// input() offering two commands) re-expressed over cobra/viper and a
// bufio.Scanner foreground loop, per SPEC_FULL.md's Coordinator UI note.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/coordinator"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/logger"
)

var (
	configFile string
	listenAddr string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coordinator",
		Short: "coordinator runs the round engine miners connect to",
		Long: `coordinator listens for miner connections, announces mining
rounds, tallies votes, and keeps the canonical chain.`,
		RunE: runCoordinator,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "localhost:65432", "address to listen for miner connections on")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if v := viper.GetString("listen"); v != "" {
		listenAddr = v
	}
	if v := viper.GetString("log_level"); v != "" {
		logLevel = v
	}

	log := logger.NewLogger(&logger.Config{
		Level:  parseLevel(logLevel),
		Prefix: "coordinator",
		Output: os.Stdout,
	})

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	defer ln.Close()
	log.Info("listening on %s", listenAddr)

	c := coordinator.New(log)
	go func() {
		if err := c.Serve(ln); err != nil {
			log.Error("accept loop stopped: %v", err)
		}
	}()

	return repl(c, log)
}

// repl is the "save credentials / broadcast and mine" loop master.py runs,
// generalized to the three commands this repository needs.
func repl(c *coordinator.Coordinator, log *logger.Logger) error {
	fmt.Println("commands: mine, status, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "mine":
			if err := c.AnnounceMine(); err != nil {
				log.Error("round failed: %v", err)
			} else {
				fmt.Printf("round complete, chain length now %d\n", c.Chain().Len())
			}
		case "status":
			fmt.Printf("nodes: %d, chain length: %d, known keys: %d\n",
				c.NodeCount(), c.Chain().Len(), len(c.Keys()))
		case "quit", "exit":
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
