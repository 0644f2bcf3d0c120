package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiqai/avatar-gateway/internal/config"
	"github.com/lexiqai/avatar-gateway/internal/observability"
	"github.com/lexiqai/avatar-gateway/internal/sprites"
)

var (
	spriteSrc   string
	spriteDir   string
	spriteForce bool
	spriteQual  int
	verbose     bool
)

var spritesCmd = &cobra.Command{
	Use:   "sprites",
	Short: "Generate the six mouth sprites from the avatar portrait",
	Long: `Generate v0.jpg through v5.jpg from the avatar portrait. Without --force the
sprites are only rebuilt when the portrait is newer than them.`,
	Args: cobra.NoArgs,
	RunE: runSprites,
}

func init() {
	defaults := sprites.DefaultOptions()

	spritesCmd.Flags().StringVar(&spriteSrc, "src", config.GetEnv("AVATAR_IMAGE", "static/images/gen_2.png"), "avatar portrait")
	spritesCmd.Flags().StringVar(&spriteDir, "dir", config.GetEnv("SPRITE_DIR", "static/images/visemes"), "sprite output directory")
	spritesCmd.Flags().BoolVarP(&spriteForce, "force", "f", false, "regenerate even when sprites are up to date")
	spritesCmd.Flags().IntVar(&spriteQual, "quality", defaults.Quality, "JPEG quality (1-100)")
	spritesCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(spritesCmd)
}

func runSprites(cmd *cobra.Command, args []string) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	observability.InitLogger(level, true)
	logger := observability.WithComponent("sprites")

	opts := sprites.DefaultOptions()
	opts.Quality = spriteQual

	if spriteForce {
		if err := sprites.Generate(spriteSrc, spriteDir, opts, logger); err != nil {
			return fmt.Errorf("generate sprites: %w", err)
		}
		if _, err := sprites.Load(spriteDir); err != nil {
			return fmt.Errorf("verify sprites: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %d sprites in %s\n", sprites.FrameCount, spriteDir)
		return nil
	}

	set, regenerated, err := sprites.Ensure(spriteSrc, spriteDir, opts, logger)
	if err != nil {
		return fmt.Errorf("ensure sprites: %w", err)
	}
	if regenerated {
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %d sprites (%dpx) in %s\n", sprites.FrameCount, set.Size(), spriteDir)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Sprites in %s are up to date\n", spriteDir)
	}
	return nil
}
