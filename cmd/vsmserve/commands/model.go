package commands

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/xupit3r/vsmserve/internal/model"
	"github.com/xupit3r/vsmserve/internal/system"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage models",
	Long:  "Inspect hub repositories and manage the local model cache",
}

var modelInfoCmd = &cobra.Command{
	Use:   "info [repo]",
	Short: "Show the GGUF files of a hub repository",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModelInfo,
}

var modelDownloadCmd = &cobra.Command{
	Use:   "download [repo]",
	Short: "Download a model into the cache",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModelDownload,
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached models",
	Args:  cobra.NoArgs,
	RunE:  runModelList,
}

var modelRemoveCmd = &cobra.Command{
	Use:   "remove <repo@revision/file>",
	Short: "Remove a cached model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelRemove,
}

var modelClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached model and partial download",
	Args:  cobra.NoArgs,
	RunE:  runModelClear,
}

var (
	modelFile     string
	modelRevision string
	clearYes      bool
)

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelInfoCmd)
	modelCmd.AddCommand(modelDownloadCmd)
	modelCmd.AddCommand(modelListCmd)
	modelCmd.AddCommand(modelRemoveCmd)
	modelCmd.AddCommand(modelClearCmd)

	for _, c := range []*cobra.Command{modelInfoCmd, modelDownloadCmd} {
		c.Flags().StringVar(&modelRevision, "revision", "", "branch, tag or commit (default model.revision)")
	}
	modelDownloadCmd.Flags().StringVar(&modelFile, "file", "", "GGUF file in the repository (default model.file)")
	modelClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
}

// target resolves the repo and revision from args and flags, falling back
// to the configured model.
func target(args []string) (repo, revision string) {
	repo, revision = cfg.Model.Repo, cfg.Model.Revision
	if len(args) == 1 {
		repo = args[0]
	}
	if modelRevision != "" {
		revision = modelRevision
	}
	return repo, revision
}

func newHub() *model.Hub {
	hub := model.NewHub(cfg.Hub.Endpoint, cfg.Hub.Token, nil)
	hub.APITimeout = cfg.Hub.Timeout
	return hub
}

func openCache() (*model.Cache, error) {
	cache, err := model.NewCache(cfg.Model.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open model cache: %w", err)
	}
	return cache, nil
}

func runModelInfo(cmd *cobra.Command, args []string) error {
	repo, revision := target(args)
	out := cmd.OutOrStdout()

	hub := newHub()
	info, err := hub.ModelInfo(cmd.Context(), repo, revision)
	if err != nil {
		return err
	}
	cache, err := openCache()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Repository:  %s\n", info.ID)
	fmt.Fprintf(out, "Revision:    %s (%s)\n", revision, info.SHA)
	fmt.Fprintf(out, "Private:     %v\n", info.Private)
	if gated, ok := info.Gated.(string); ok {
		fmt.Fprintf(out, "Gated:       %s\n", gated)
	}
	fmt.Fprintln(out)

	var files []model.RepoFile
	for _, f := range info.Siblings {
		if strings.HasSuffix(strings.ToLower(f.Name), ".gguf") {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No GGUF files in this repository.")
		return nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	usable, _ := system.EstimateUsableRAM()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSIZE\tCACHED\tFITS IN RAM")
	fmt.Fprintln(w, "----\t----\t------\t-----------")
	for _, f := range files {
		cached := ""
		if cache.Has(model.Key(repo, revision, f.Name)) {
			cached = "yes"
		}
		fits := "?"
		if size := f.ExpectedSize(); size > 0 && usable > 0 {
			fits = "no"
			if size <= usable {
				fits = "yes"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Name, system.FormatBytes(f.ExpectedSize()), cached, fits)
	}
	return w.Flush()
}

func runModelDownload(cmd *cobra.Command, args []string) error {
	repo, revision := target(args)
	file := cfg.Model.File
	if modelFile != "" {
		file = modelFile
	}

	cached, err := ensureModel(cmd.Context(), repo, file, revision, false)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Model ready: %s\n", cached.ID())
	fmt.Fprintf(out, "Path:        %s\n", cached.Path)
	fmt.Fprintf(out, "Size:        %s\n", system.FormatBytes(cached.SizeBytes))
	return nil
}

func runModelList(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	models := cache.List()
	if len(models) == 0 {
		fmt.Fprintln(out, "No models cached.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSIZE\tDOWNLOADED\tLAST USED")
	fmt.Fprintln(w, "--\t----\t----------\t---------")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			m.ID(),
			system.FormatBytes(m.SizeBytes),
			m.DownloadedAt.Format("2006-01-02"),
			humanize.Time(m.LastUsed))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal cache size: %s\n", system.FormatBytes(cache.TotalSize()))
	return nil
}

func runModelRemove(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}

	key := args[0]
	if !cache.Has(key) {
		return fmt.Errorf("model not cached: %s", key)
	}
	if err := cache.Remove(key); err != nil {
		return fmt.Errorf("failed to remove model: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed model: %s\n", key)
	return nil
}

func runModelClear(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !clearYes {
		fmt.Fprintf(out, "This removes %d cached model(s) (%s). Continue? [y/N] ",
			len(cache.List()), system.FormatBytes(cache.TotalSize()))
		var answer string
		fmt.Fscanln(cmd.InOrStdin(), &answer)
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintln(out, "Model cache cleared.")
	return nil
}
