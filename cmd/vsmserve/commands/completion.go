package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/xupit3r/vsmserve/internal/config"
	"github.com/xupit3r/vsmserve/internal/model"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for vsmserve.

To load completions:

Bash:
  $ vsmserve completion bash > ~/.local/share/bash-completion/completions/vsmserve
  $ source ~/.local/share/bash-completion/completions/vsmserve

Zsh:
  $ vsmserve completion zsh > ~/.zsh/completion/_vsmserve
  $ echo 'fpath=(~/.zsh/completion $fpath)' >> ~/.zshrc
  $ echo 'autoload -Uz compinit && compinit' >> ~/.zshrc

Fish:
  $ vsmserve completion fish > ~/.config/fish/completions/vsmserve.fish

PowerShell:
  PS> vsmserve completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	// completion scripts need no config
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)

	modelRemoveCmd.ValidArgsFunction = cachedModelKeys
	for _, c := range []*cobra.Command{serveCmd, deviceInfoCmd} {
		c.RegisterFlagCompletionFunc("device", deviceNames)
	}
}

func runCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return cmd.Root().GenBashCompletionV2(out, true)
	case "zsh":
		return cmd.Root().GenZshCompletion(out)
	case "fish":
		return cmd.Root().GenFishCompletion(out, true)
	case "powershell":
		return cmd.Root().GenPowerShellCompletionWithDesc(out)
	}
	return nil
}

// cachedModelKeys completes cache keys for model remove.
func cachedModelKeys(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	c := cfg
	if c == nil {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		c = loaded
	}
	if _, err := os.Stat(c.Model.CacheDir); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cache, err := model.NewCache(c.Model.CacheDir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var keys []string
	for _, m := range cache.List() {
		keys = append(keys, m.ID())
	}
	return keys, cobra.ShellCompDirectiveNoFileComp
}

func deviceNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"auto\tbest accelerator, else CPU",
		"cpu\tforce CPU",
		"gpu\tplatform accelerator",
		"cuda\tNVIDIA CUDA",
		"metal\tApple Metal",
	}, cobra.ShellCompDirectiveNoFileComp
}
