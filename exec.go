package lbpcascade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"golang.org/x/term"

	"github.com/esimov/lbpcascade/utils"
)

// maxWorkers sets the maximum number of concurrently running workers.
const maxWorkers = 20

// Output file name suffixes.
const (
	detectionsSuffix = "_detections"
	referenceSuffix  = "_detections_reference"
)

// Supported files
var validExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp"}

// Ops describes the source and destination of an execution.
// Src can be an image file, a directory, an URL or the pipe name.
// Dst is the output directory or the pipe name.
type Ops struct {
	Src, Dst, PipeName string
	Workers            int
	// Status receives the progress messages. Defaults to os.Stderr.
	Status io.Writer
}

// result holds the relevant information about the detection process and the generated image.
type result struct {
	path string
	out  string
	res  *Result
	err  error
}

// Execute runs the detection over the source described by op and writes the annotated images.
// Directories are walked recursively and their images are processed concurrently.
func (p *Processor) Execute(ctx context.Context, op *Ops) error {
	if op.Status == nil {
		op.Status = os.Stderr
	}
	now := time.Now()

	src := op.Src
	name := op.Src
	// Check if source path is a local image or URL.
	if utils.IsValidUrl(op.Src) {
		f, err := utils.DownloadImage(ctx, op.Src)
		if err != nil {
			return fmt.Errorf("failed to load the source image: %w", err)
		}
		defer os.Remove(f.Name())
		if err := f.Close(); err != nil {
			return err
		}
		src = f.Name()
		if u, err := url.Parse(op.Src); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
			name = path.Base(u.Path)
		} else {
			name = "download"
		}
	}

	var (
		fs  os.FileInfo
		err error
	)
	// Check if the source is a pipe name or a regular file.
	if src == op.PipeName {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("`-` should be used with a pipe for stdin")
		}
		fs, err = os.Stdin.Stat()
		name = "stdin"
	} else {
		fs, err = os.Stat(src)
	}
	if err != nil {
		return fmt.Errorf("failed to load the source image: %w", err)
	}

	switch mode := fs.Mode(); {
	case mode.IsDir():
		err = op.processDir(ctx, p, src)
	case mode.IsRegular() || mode&os.ModeNamedPipe != 0 || src == op.PipeName:
		if src != op.PipeName && !isValidExtension(filepath.Ext(src), validExtensions) && !utils.IsValidUrl(op.Src) {
			return fmt.Errorf("%v file type not supported", filepath.Ext(src))
		}
		if err := op.ensureDir(op.Dst); err != nil {
			return err
		}
		out, ref := op.outputPaths(p, op.Dst, name)

		p.startSpinner()
		res, perr := op.process(ctx, p, src, out, ref)
		p.stopSpinner(perr)
		op.printOpStatus(out, res, perr)
		err = perr
	default:
		return fmt.Errorf("unsupported source: %s", op.Src)
	}

	if err == nil {
		fmt.Fprintf(op.Status, "\nExecution time: %s\n", utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
	}
	return err
}

// processDir walks the source directory and feeds the image files to a bounded pool of workers.
func (op *Ops) processDir(ctx context.Context, p *Processor, src string) error {
	if op.Dst == op.PipeName {
		return errors.New("a directory can not be written to a pipe")
	}
	if err := op.ensureDir(op.Dst); err != nil {
		return err
	}

	// Limit the concurrently running workers to maxWorkers.
	workers := op.Workers
	if workers <= 0 || workers > maxWorkers {
		workers = utils.Min(runtime.NumCPU(), maxWorkers)
	}
	logger.Debugf(ctx, "processing %s with %d workers", src, workers)

	var wg sync.WaitGroup
	ch := make(chan result)
	done := make(chan interface{})
	defer close(done)

	paths, errc := walkDir(done, src, validExtensions)

	p.startSpinner()
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			op.consumer(ctx, p, src, ch, done, paths)
		}()
	}

	// Close the channel after the values are consumed.
	go func() {
		defer close(ch)
		wg.Wait()
	}()

	var errs []error
	for r := range ch {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.path, r.err))
		}
		op.printOpStatus(r.out, r.res, r.err)
	}
	if err := <-errc; err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	p.stopSpinner(err)
	return err
}

// consumer reads the path names from the paths channel and runs the detection against the source image.
func (op *Ops) consumer(
	ctx context.Context,
	p *Processor,
	root string,
	res chan<- result,
	done <-chan interface{},
	paths <-chan string,
) {
	for src := range paths {
		r := result{path: src}

		// Keep the directory layout of the source tree.
		dir := op.Dst
		if rel, err := filepath.Rel(root, filepath.Dir(src)); err == nil {
			dir = filepath.Join(op.Dst, rel)
		}
		if r.err = op.ensureDir(dir); r.err == nil {
			var ref string
			r.out, ref = op.outputPaths(p, dir, filepath.Base(src))
			r.res, r.err = op.process(ctx, p, src, r.out, ref)
		}

		select {
		case <-done:
			return
		case res <- r:
		}
	}
}

// process runs the detection over a single image and writes the annotated outputs.
// The reference output is written only when the processor has a reference detector.
func (op *Ops) process(ctx context.Context, p *Processor, in, out, refOut string) (*Result, error) {
	src, dst, err := op.pathToFile(in, out)
	if err != nil {
		return nil, err
	}
	defer closeFile(src)

	res, err := p.Process(ctx, src, dst)
	closeFile(dst)
	if err != nil {
		// remove the generated image file in case of an error
		if out != op.PipeName {
			os.Remove(out)
		}
		return nil, err
	}

	if p.Reference != nil && refOut != "" {
		f, err := os.Create(refOut)
		if err != nil {
			return res, fmt.Errorf("unable to create the reference file: %w", err)
		}
		err = p.WriteReference(f, res)
		closeFile(f)
		if err != nil {
			os.Remove(refOut)
			return res, err
		}
	}
	return res, nil
}

// pathToFile converts the source and destination paths to readable and writable files.
func (op *Ops) pathToFile(in, out string) (io.Reader, io.Writer, error) {
	var (
		src io.Reader
		dst io.Writer
		err error
	)
	// Check if the source is a pipe name or a regular file.
	if in == op.PipeName {
		src = os.Stdin
	} else {
		src, err = os.Open(in)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open the source file: %w", err)
		}
	}

	// Check if the destination is a pipe name or a regular file.
	if out == op.PipeName {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			closeFile(src)
			return nil, nil, errors.New("`-` should be used with a pipe for stdout")
		}
		dst = os.Stdout
	} else {
		dst, err = os.Create(out)
		if err != nil {
			closeFile(src)
			return nil, nil, fmt.Errorf("unable to create the destination file: %w", err)
		}
	}
	return src, dst, nil
}

// outputPaths returns the annotated and the reference output paths of the named source image.
func (op *Ops) outputPaths(p *Processor, dir, name string) (string, string) {
	if op.Dst == op.PipeName {
		return op.PipeName, ""
	}
	name = filepath.Base(name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if p.Format != "" {
		ext = "." + p.Format
	} else if !isValidExtension(ext, validExtensions) {
		ext = "." + FormatPNG
	}
	return filepath.Join(dir, base+detectionsSuffix+ext), filepath.Join(dir, base+referenceSuffix+ext)
}

func (op *Ops) ensureDir(dir string) error {
	if dir == op.PipeName {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create the destination directory: %w", err)
	}
	return nil
}

// printOpStatus displays the relevant information about the detection process.
func (op *Ops) printOpStatus(fname string, res *Result, err error) {
	if err != nil {
		fmt.Fprintf(op.Status, "%s%s",
			utils.DecorateText("\nError processing the image: ", utils.ErrorMessage),
			utils.DecorateText(fmt.Sprintf("\n\tReason: %v\n", err), utils.DefaultMessage),
		)
		return
	}
	if fname != op.PipeName {
		fmt.Fprintf(op.Status, "\nThe image has been saved as: %s %s\n",
			utils.DecorateText(filepath.Base(fname), utils.SuccessMessage),
			utils.DefaultColor,
		)
	}
	if res == nil {
		return
	}
	fmt.Fprintf(op.Status, "\t%s found, %s evaluated in %s\n",
		utils.DecorateText(utils.FormatCount(int64(len(res.Detections)), "detections"), utils.StatusMessage),
		utils.FormatCount(res.Windows, "windows"),
		utils.FormatTime(res.Elapsed),
	)
	if c := res.Comparison; c != nil {
		fmt.Fprintf(op.Status, "\treference: %d detections, %d matched, %d ours only, %d reference only, IoU %.3f ± %.3f\n",
			len(res.Reference), c.Matched, c.OursOnly, c.ReferenceOnly, c.MeanIoU, c.StdDevIoU,
		)
	}
}

func (p *Processor) startSpinner() {
	if p.Spinner != nil {
		p.Spinner.Start()
	}
}

func (p *Processor) stopSpinner(err error) {
	if p.Spinner == nil {
		return
	}
	if err != nil {
		p.Spinner.StopMsg = fmt.Sprintf("%s %s %s\n",
			utils.DecorateText("⚡ LBPDETECT", utils.StatusMessage),
			utils.DecorateText("detection failed...", utils.DefaultMessage),
			utils.DecorateText("✘", utils.ErrorMessage),
		)
	} else {
		p.Spinner.StopMsg = fmt.Sprintf("%s %s %s\n",
			utils.DecorateText("⚡ LBPDETECT", utils.StatusMessage),
			utils.DecorateText("⇢", utils.DefaultMessage),
			utils.DecorateText("detection finished successfully ✔", utils.SuccessMessage),
		)
	}
	p.Spinner.Stop()
}

func closeFile(v any) {
	f, ok := v.(*os.File)
	if !ok || f == os.Stdin || f == os.Stdout {
		return
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "could not close the opened file: %v\n", err)
	}
}

// walkDir starts a new goroutine to walk the specified directory tree
// in recursive manner and sends the path of each supported image file to a new channel.
// It finishes in case the done channel is getting closed.
func walkDir(
	done <-chan interface{},
	src string,
	srcExts []string,
) (<-chan string, <-chan error) {
	pathChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		// Close the paths channel after Walk returns.
		defer close(pathChan)

		errChan <- filepath.WalkDir(src, func(fpath string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			name := d.Name()
			// Skip the outputs of a previous run.
			base := strings.TrimSuffix(name, filepath.Ext(name))
			if strings.HasSuffix(base, detectionsSuffix) || strings.HasSuffix(base, referenceSuffix) {
				return nil
			}
			if !isValidExtension(filepath.Ext(name), srcExts) {
				return nil
			}

			select {
			case <-done:
				return errors.New("directory walk cancelled")
			case pathChan <- fpath:
			}
			return nil
		})
	}()
	return pathChan, errChan
}

// isValidExtension checks for the supported extensions.
func isValidExtension(ext string, extensions []string) bool {
	ext = strings.ToLower(ext)
	for _, ex := range extensions {
		if ex == ext {
			return true
		}
	}
	return false
}
