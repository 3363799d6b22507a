package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/upload"
)

const (
	defaultConcurrency = 4
	maxConcurrency     = 16
)

// uploadUI draws one bar per upload task. Its Send is called from the
// upload goroutines.
type uploadUI struct {
	progress   *mpb.Progress
	bars       map[string]*mpb.Bar // task id -> bar, fixed before uploads start
	isTerminal bool
	out        io.Writer
}

func newUploadUI(out io.Writer) *uploadUI {
	tty := isTerminal(out)

	var p *mpb.Progress
	if tty {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(150*time.Millisecond),
			mpb.WithWidth(60),
		)
	} else {
		// no bars without a terminal, just text
		p = mpb.New(mpb.WithOutput(io.Discard))
	}
	return &uploadUI{progress: p, bars: map[string]*mpb.Bar{}, isTerminal: tty, out: out}
}

func (u *uploadUI) add(taskID string, src upload.Source, index, total int) {
	if !u.isTerminal {
		fmt.Fprintf(u.out, "Uploading [%d/%d]: %s (%s)\n", index, total, src.Name, models.FormatSize(src.Size))
		return
	}
	size := src.Size
	if size < 0 {
		size = 0
	}
	u.bars[taskID] = u.progress.New(size,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("[%d/%d] %s", index, total, src.Name), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
		),
	)
}

// Send implements upload.Sender
func (u *uploadUI) Send(msg tea.Msg) {
	p, ok := msg.(upload.ProgressMsg)
	if !ok {
		return
	}
	if bar := u.bars[p.TaskID]; bar != nil {
		bar.SetCurrent(p.Sent)
	}
}

func (u *uploadUI) finish(taskID string, err error) {
	bar := u.bars[taskID]
	if bar == nil {
		return
	}
	if err != nil {
		bar.Abort(false)
		return
	}
	bar.SetTotal(-1, true)
}

func (u *uploadUI) wait() {
	u.progress.Wait()
}

// newUploadCmd creates the 'upload' command.
func newUploadCmd(a *app) *cobra.Command {
	var parent string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload files into a directory",
		Long: `Upload one or more local files. Several files are sent at the same time.

Examples:
  # Upload to the root
  cloudisk upload report.pdf

  # Upload into a directory, two at a time
  cloudisk upload *.jpg --parent 64f1c0 --concurrency 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 || concurrency > maxConcurrency {
				return a.report(cmd, fmt.Errorf("--concurrency must be between 1 and %d, got %d", maxConcurrency, concurrency))
			}
			return a.upload(cmd, args, parent, concurrency)
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Target directory id (default: root)")
	cmd.Flags().IntVar(&concurrency, "concurrency", defaultConcurrency, "Files uploaded at the same time")
	return cmd
}

func (a *app) upload(cmd *cobra.Command, paths []string, parent string, concurrency int) error {
	ctx := cmd.Context()
	n, b, err := a.browse(ctx, parent, models.SortNone)
	if err != nil {
		return a.report(cmd, err)
	}

	sources := make([]upload.Source, 0, len(paths))
	for _, path := range paths {
		src, err := upload.FileSource(path)
		if err != nil {
			return a.report(cmd, err)
		}
		sources = append(sources, src)
	}

	ui := newUploadUI(cmd.ErrOrStderr())
	tracker := upload.New(ctx, b.svc, ui, n, a.log)

	// tasks are registered here, only the transfers run concurrently
	cmds := make([]tea.Cmd, len(sources))
	for i, src := range sources {
		id, c := tracker.BeginUpload(src, n.CurrentDir())
		ui.add(id, src, i+1, len(sources))
		cmds[i] = c
	}

	results := make(chan upload.DoneMsg, len(cmds))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, c := range cmds {
		c := c
		g.Go(func() error {
			done, _ := c().(upload.DoneMsg)
			ui.finish(done.TaskID, done.Err)
			results <- done
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	ui.wait()

	for done := range results {
		tracker.Update(done)
	}

	var failed int
	for _, task := range tracker.Tasks() {
		switch task.State {
		case upload.StateDone:
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Uploaded '%s' (%s)\n", task.Name, task.Entry.ID)
		case upload.StateFailed:
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: failed to upload '%s': %s\n", task.Name, task.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(sources))
	}
	return nil
}

// newDownloadCmd creates the 'download' command.
func newDownloadCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download a file",
		Long: `Download a file by id. Without --output it is written to the
download directory under the name it has on the service.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.download(cmd, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Local path to write to")
	return cmd
}

// lookup resolves id against the root listing. Entries from other
// directories are downloaded under their id.
func (a *app) lookup(ctx context.Context, id string) (models.FileEntry, *backend, error) {
	n, b, err := a.browse(ctx, "", models.SortNone)
	if err != nil {
		return models.FileEntry{}, nil, err
	}
	for _, e := range n.Listing() {
		if e.ID == id {
			return e, b, nil
		}
	}
	return models.FileEntry{ID: id, Name: filepath.Base(id), Size: -1}, b, nil
}

func (a *app) download(cmd *cobra.Command, id, output string) error {
	ctx := cmd.Context()
	entry, b, err := a.lookup(ctx, id)
	if err != nil {
		return a.report(cmd, err)
	}
	if entry.IsDir() {
		return a.report(cmd, fmt.Errorf("'%s' is a directory", entry.Name))
	}

	if output == "" {
		output = filepath.Join(a.cfg.DownloadDir, filepath.Base(entry.Name))
	}
	f, err := os.Create(output)
	if err != nil {
		return a.report(cmd, fmt.Errorf("failed to write file '%s': %w", output, err))
	}

	var w io.Writer = f
	if isTerminal(cmd.ErrOrStderr()) {
		bar := progressbar.NewOptions64(entry.Size,
			progressbar.OptionSetDescription(entry.Name),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(cmd.ErrOrStderr(), "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
		)
		defer bar.Finish()
		w = io.MultiWriter(f, bar)
	}

	n, err := b.svc.Download(ctx, id, w)
	if err != nil {
		f.Close()
		os.Remove(output)
		return a.report(cmd, err)
	}
	if err := f.Close(); err != nil {
		return a.report(cmd, fmt.Errorf("failed to write file '%s': %w", output, err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Downloaded '%s' to %s (%s)\n", entry.Name, output, models.FormatSize(n))
	return nil
}
