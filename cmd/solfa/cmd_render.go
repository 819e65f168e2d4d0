package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/config"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving/builtin"
	"github.com/Conceptual-Machines/solfa-api/internal/exercise"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

var (
	renderOut      string
	renderNotation string
	renderEngraver string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a generated or supplied pattern to PNG",
	Args:  cobra.NoArgs,
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "exercise.png", "Output PNG path")
	renderCmd.Flags().StringVar(&renderNotation, "notation", "", "Pattern to render instead of generating one")
	renderCmd.Flags().StringVar(&renderEngraver, "engraver", "", "Engraver mode: builtin or none (default: ENGRAVER)")
}

func runRender(cmd *cobra.Command, _ []string) error {
	t, err := resolveTier()
	if err != nil {
		return err
	}

	var images []*canvas.Image
	defer func() {
		for _, img := range images {
			_ = img.Close()
		}
	}()
	for i := 0; i < 3; i++ {
		img, err := canvas.NewImage(int(t.render.Width), int(t.render.Height))
		if err != nil {
			return err
		}
		images = append(images, img)
	}
	layers := exercise.Layers{Notation: images[0], Highlight: images[1], Labels: images[2]}

	mode := renderEngraver
	if mode == "" {
		mode = cfg.Engraver
	}
	opts := []exercise.Option{
		exercise.WithGenerator(newGenerator()),
		exercise.WithRenderConfig(t.render),
		exercise.WithReadyTimeout(cfg.RenderReadyTimeout),
		exercise.WithPresetName(t.name),
	}
	switch mode {
	case config.EngraverBuiltin:
		opts = append(opts, exercise.WithEngraver(builtin.New()))
	case config.EngraverNone:
	default:
		return fmt.Errorf("unknown engraver %q", mode)
	}
	session := exercise.New(t.rules, layers, opts...)
	defer session.Close()

	if renderNotation != "" {
		notes, err := models.ParseNotes(renderNotation)
		if err != nil {
			return err
		}
		if err := session.Load(models.NewPattern(notes)); err != nil {
			return err
		}
	} else {
		session.Generate(cmd.Context())
	}

	pm, err := session.Render(cmd.Context())
	if err != nil {
		return err
	}
	session.Overlay().Tick()

	f, err := os.Create(renderOut)
	if err != nil {
		return err
	}
	if err := canvas.WritePNG(f, images...); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\nrendered %d notes with the %s renderer to %s\n",
		strings.TrimSpace(session.Pattern().String()), pm.Len(), pm.Engine(), renderOut)
	return nil
}
