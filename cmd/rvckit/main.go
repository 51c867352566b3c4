// Package main provides the rvckit CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/rvckit/rvckit/internal/checkpoint"
	"github.com/rvckit/rvckit/internal/merge"
	"github.com/rvckit/rvckit/internal/mergeplan"
	"github.com/rvckit/rvckit/internal/safetensors"
	"github.com/rvckit/rvckit/internal/tensor"
	"github.com/rvckit/rvckit/internal/verify"
)

const version = "v0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "merge":
		cmdMerge(os.Args[2:])
	case "verify":
		cmdVerify(os.Args[2:])
	case "inspect":
		cmdInspect(os.Args[2:])
	case "convert":
		cmdConvert(os.Args[2:])
	case "version":
		fmt.Printf("rvckit %s\n", version)
	case "help", "-h", "-help", "--help":
		usage()
	default:
		klog.Errorf("Unknown command %q. See 'rvckit help'.", os.Args[1])
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("rvckit - RVC checkpoint merging and verification")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  merge      Average checkpoints into one (ad-hoc or from a YAML plan)")
	fmt.Println("  verify     Check checkpoint structure against RVC role conventions")
	fmt.Println("  inspect    Show a checkpoint's header and tensor table")
	fmt.Println("  convert    Convert between .rvck and .safetensors")
	fmt.Println("  version    Show version")
	fmt.Println("")
	fmt.Println("Run 'rvckit <command> -help' for command flags.")
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	compatibleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Padding(0, 4)
	incompatibleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")).Padding(0, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				s = headerRowStyle
				return
			}
			switch {
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func cmdMerge(args []string) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	planPath := fs.String("plan", "", "YAML merge plan covering both roles. Mutually exclusive with -out and inputs.")
	out := fs.String("out", "", "Output checkpoint path for an ad-hoc merge of the input files.")
	weightsFlag := fs.String("weights", "", "Comma-separated positive weights, one per input. Equal weights when empty.")
	basePath := fs.String("base", "", "Base checkpoint blended 50/50 with the merged inputs.")
	_ = fs.Parse(args)

	var jobs []merge.Job
	switch {
	case *planPath != "":
		if *out != "" || fs.NArg() > 0 {
			klog.Errorf("-plan cannot be combined with -out or input files. See 'rvckit merge -help'.")
			os.Exit(1)
		}
		plan, err := mergeplan.Load(*planPath)
		if err != nil {
			klog.Errorf("%v", err)
			os.Exit(1)
		}
		jobs = plan.Jobs()
	case *out != "":
		jobs = []merge.Job{{
			Inputs:  fs.Args(),
			Weights: parseWeights(*weightsFlag),
			Base:    *basePath,
			Output:  *out,
		}}
	default:
		klog.Errorf("Either -plan or -out is required. See 'rvckit merge -help'.")
		os.Exit(1)
	}

	for i := range jobs {
		runJob(&jobs[i])
	}
}

func parseWeights(s string) []float64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	weights := make([]float64, len(parts))
	for i, part := range parts {
		w, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			klog.Errorf("Invalid weight %q: %v", part, err)
			os.Exit(1)
		}
		weights[i] = w
	}
	return weights
}

func runJob(job *merge.Job) {
	if err := job.Validate(); err != nil {
		klog.Errorf("Merge into %q: %v", job.Output, err)
		os.Exit(1)
	}

	total := len(job.Inputs)
	if job.Base != "" {
		total++
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("merging"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: ".",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	job.OnLoad = func(path string) {
		bar.Describe(filepath.Base(path))
		_ = bar.Add(1)
	}

	err := job.Run()
	_ = bar.Close()
	fmt.Println()
	if err != nil {
		klog.Errorf("Merge failed: %v", err)
		os.Exit(1)
	}

	written := "?"
	if info, statErr := os.Stat(job.Output); statErr == nil {
		written = humanize.Bytes(uint64(info.Size())) //nolint:gosec // G115: file sizes are non-negative
	}
	fmt.Printf("Merged %d checkpoints into %s (%s)\n", total, job.Output, written)
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	roleFlag := fs.String("role", "auto", "Role to check against: generator, discriminator or auto.")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		klog.Errorf("Missing checkpoint files to verify. See 'rvckit verify -help'.")
		os.Exit(1)
	}
	role, err := verify.ParseRole(*roleFlag)
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}

	failed := false
	for _, path := range fs.Args() {
		report, err := verify.File(path, role)
		if err != nil {
			klog.Errorf("%s: %v", path, err)
			failed = true
			continue
		}
		renderReport(report)
		if !report.Compatible {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func renderReport(r *verify.Report) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s as %s", r.Path, r.Role)))

	table := newPlainTable(false)
	for _, c := range r.Checks {
		mark := passStyle.Render("✓")
		if !c.OK {
			mark = failStyle.Render("✗")
		}
		table.Row(mark, c.Name, c.Details)
	}
	fmt.Println(table.Render())

	if len(r.FoundPrefixes) > 0 {
		fmt.Printf("Found prefixes: %s\n", strings.Join(r.FoundPrefixes, ", "))
	}
	if len(r.SampleKeys) > 0 {
		fmt.Printf("Sample keys:    %s\n", strings.Join(r.SampleKeys, ", "))
	}

	if r.Compatible {
		fmt.Println(compatibleStyle.Render("COMPATIBLE"))
	} else {
		fmt.Println(incompatibleStyle.Render("INCOMPATIBLE"))
	}
	fmt.Println()
}

func cmdInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	listTensors := fs.Bool("tensors", false, "List every tensor in the model table.")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		klog.Errorf("Expected exactly one checkpoint file. See 'rvckit inspect -help'.")
		os.Exit(1)
	}
	path := fs.Arg(0)

	r, err := checkpoint.NewReaderWithOptions(path, checkpoint.ReaderOptions{
		SkipChecksumValidation: true,
		ValidationLevel:        checkpoint.ValidationStrict,
	})
	if err != nil {
		klog.Errorf("%s: %v", path, err)
		os.Exit(1)
	}
	defer r.Close()

	header := r.Header()
	var elements, bytes int64
	for _, meta := range header.Model {
		elements += int64(tensor.Shape(meta.Shape).NumElements())
		bytes += meta.Size
	}

	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable(false)
	table.Row("file", path)
	table.Row("format version", strconv.Itoa(header.FormatVersion))
	table.Row("tool version", header.ToolVersion)
	table.Row("created", header.CreatedAt.Format(time.RFC3339))
	table.Row("# tensors", humanize.Comma(int64(len(header.Model))))
	table.Row("# parameters", humanize.Comma(elements))
	table.Row("# bytes", humanize.Bytes(uint64(bytes))) //nolint:gosec // G115: sizes are validated non-negative
	if t := r.Train(); t != nil {
		table.Row("train iteration", humanize.Comma(t.Iteration))
		table.Row("train epoch", humanize.Comma(int64(t.Epoch)))
		table.Row("learning rate", fmt.Sprintf("%g", t.LearningRate))
	}
	for _, key := range sortedKeys(r.Metadata()) {
		table.Row(key, r.Metadata()[key])
	}
	fmt.Println(table.Render())

	if *listTensors {
		fmt.Println(titleStyle.Render("Tensors"))
		table := newPlainTable(true)
		table.Row("Name", "DType", "Shape", "Size", "Bytes")
		for _, name := range r.TensorNames() {
			meta := must.M1(r.TensorInfo(name))
			table.Row(name, meta.DType,
				tensor.Shape(meta.Shape).String(),
				humanize.Comma(int64(tensor.Shape(meta.Shape).NumElements())),
				humanize.Bytes(uint64(meta.Size))) //nolint:gosec // G115: sizes are validated non-negative
		}
		fmt.Println(table.Render())
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func cmdConvert(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		klog.Errorf("Expected source and destination paths. See 'rvckit convert -help'.")
		os.Exit(1)
	}
	src, dst := fs.Arg(0), fs.Arg(1)
	if err := convertFile(src, dst); err != nil {
		klog.Errorf("Conversion failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s to %s\n", src, dst)
}

// convertFile infers the conversion direction from the file extensions.
func convertFile(src, dst string) error {
	srcExt, dstExt := filepath.Ext(src), filepath.Ext(dst)
	switch {
	case srcExt == ".safetensors" && dstExt == ".rvck":
		ck, err := safetensors.Import(src)
		if err != nil {
			return err
		}
		return checkpoint.Save(dst, ck)
	case srcExt == ".rvck" && dstExt == ".safetensors":
		ck, err := checkpoint.Load(src)
		if err != nil {
			return err
		}
		return safetensors.Export(ck, dst)
	}
	return fmt.Errorf("cannot infer a conversion from %q to %q (want .rvck and .safetensors)", src, dst)
}
