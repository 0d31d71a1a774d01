package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/typhoonlens/pkg/acquisition"
	"github.com/osvaldoandrade/typhoonlens/pkg/domain"
)

func analyzeCmd(g *globals, ui *ui) *cobra.Command {
	var (
		imagePath  string
		reportPath string
		htmlPath   string
		raw        bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a CCTV image against a typhoon report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			p := newPipeline(g.baseURL, g.httpTimeout(), g.logger(), cmd.OutOrStdout(), ui, isInteractive(os.Stdout))
			return runAnalyze(ctx, p, imagePath, reportPath, htmlPath, raw)
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "CCTV image (image/*)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Typhoon report (application/pdf)")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Also write the report as an HTML page")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the report markdown as received")
	return cmd
}

func runAnalyze(ctx context.Context, p *pipeline, imagePath, reportPath, htmlPath string, raw bool) error {
	if imagePath != "" {
		if err := p.selectFile(domain.RoleImage, imagePath); err != nil {
			return err
		}
	}
	if reportPath != "" {
		if err := p.selectFile(domain.RoleDocument, reportPath); err != nil {
			return err
		}
	}

	_, err := p.analyze(ctx)
	if err != nil && !errors.Is(err, errAnalysisFailed) {
		return err
	}
	p.render(raw)
	if htmlPath != "" {
		if herr := p.writeHTML(htmlPath); herr != nil && err == nil {
			return herr
		}
	}
	return err
}

func sessionCmd(g *globals, ui *ui) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Interactive session: drop files, then analyze",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			p := newPipeline(g.baseURL, g.httpTimeout(), g.logger(), out, ui, isInteractive(os.Stdout))
			fmt.Fprintf(out, "%s Connected to %s. Drag files onto this window or type %s.\n", ui.info("[INFO]"), g.baseURL, ui.title("help"))
			return runSession(ctx, p, cmd.InOrStdin(), raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print reports as received markdown")
	return cmd
}

const sessionHelp = `Commands:
  image <path>           select the CCTV image
  report <path>          select the typhoon report (PDF)
  <path>                 a dragged file goes to the slot matching its type
  clear image|report     clear a slot
  status                 show both slots and the submit button
  analyze                run the analysis
  help                   show this help
  quit                   leave the session`

func runSession(ctx context.Context, p *pipeline, in io.Reader, raw bool) error {
	ui := p.ui
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(p.out, ui.dim("typhoonlens> "))
		if !sc.Scan() {
			fmt.Fprintln(p.out)
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch strings.ToLower(cmd) {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			fmt.Fprintln(p.out, sessionHelp)
		case "status":
			p.printStatus()
		case "image":
			err = requireArg(arg, "image <path>")
			if err == nil {
				err = p.selectFile(domain.RoleImage, arg)
			}
		case "report", "pdf":
			err = requireArg(arg, "report <path>")
			if err == nil {
				err = p.selectFile(domain.RoleDocument, arg)
			}
		case "clear":
			switch strings.ToLower(arg) {
			case "image":
				p.clear(domain.RoleImage)
			case "report", "pdf":
				p.clear(domain.RoleDocument)
			default:
				err = errors.New("usage: clear image|report")
			}
		case "analyze", "run":
			_, err = p.analyze(ctx)
			if err == nil || errors.Is(err, errAnalysisFailed) {
				p.render(raw)
			}
		default:
			err = p.dropPath(line)
		}

		if err != nil && !errors.Is(err, errReported) {
			fmt.Fprintln(p.out, ui.err("[ERROR]"), userMessage(err))
		}
	}
}

func requireArg(arg, usage string) error {
	if arg == "" {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

// dropPath handles a bare line, which is what a terminal pastes when a file
// is dragged onto it. The file goes to the slot whose filter accepts it.
func (p *pipeline) dropPath(line string) error {
	f, err := acquisition.Load(line)
	if err != nil {
		return fmt.Errorf("unknown command or file: %s", line)
	}
	for _, s := range []*acquisition.Slot{p.surface.Image, p.surface.Document} {
		if s.Filter().Matches(f.MediaType) {
			s.Drop([]domain.SelectedFile{f})
			p.printSlot(s.Role())
			return nil
		}
	}
	return nil
}
