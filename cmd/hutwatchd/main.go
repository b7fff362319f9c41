package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"hut-availability-backend/config"
)

var (
	cfgPath string
	cfg     *config.Config
)

func main() {
	// A missing .env is fine; real deployments configure through the
	// yaml file and environment.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "hutwatchd",
		Short:        "Hut availability tracking service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				cfgPath = os.Getenv("CONFIG_PATH")
			}
			if cfgPath == "" {
				cfgPath = "./config/config.yaml"
			}
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			log.Printf("configuration loaded from %s", cfgPath)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to the configuration file")

	rootCmd.AddCommand(serveCommand(), refreshCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
