package commands

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/xupit3r/vsmserve/internal/device"
	"github.com/xupit3r/vsmserve/internal/system"
)

var deviceInfoCmd = &cobra.Command{
	Use:   "device",
	Short: "Show device information",
	Long: `Display which compute device serve would select and the memory
available for loading a model.`,
	Args: cobra.NoArgs,
	RunE: runDeviceInfo,
}

var devicePref string

func init() {
	rootCmd.AddCommand(deviceInfoCmd)
	deviceInfoCmd.Flags().StringVar(&devicePref, "device", "", "device preference to resolve (default model.device)")
}

func runDeviceInfo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	pref := cfg.Model.Device
	if devicePref != "" {
		pref = devicePref
	}
	fmt.Fprintf(out, "Preference:  %s\n", pref)

	dev, err := device.Select(pref)
	if err != nil {
		fmt.Fprintln(out, "\nAvailable devices:")
		fmt.Fprintln(out, "  auto  - best accelerator, else CPU")
		fmt.Fprintln(out, "  cpu   - force CPU")
		switch runtime.GOOS {
		case "darwin":
			fmt.Fprintln(out, "  gpu   - Metal on Apple silicon")
			fmt.Fprintln(out, "  metal - Metal on Apple silicon")
		case "linux":
			fmt.Fprintln(out, "  gpu   - CUDA when an NVIDIA driver is loaded")
			fmt.Fprintln(out, "  cuda  - CUDA when an NVIDIA driver is loaded")
		}
		if errors.Is(err, device.ErrUnavailable) {
			return fmt.Errorf("%s: %w", pref, err)
		}
		return err
	}

	fmt.Fprintf(out, "Device:      %s\n", dev.Name)
	fmt.Fprintf(out, "Kind:        %s\n", dev.Kind)
	fmt.Fprintf(out, "GPU layers:  %d\n", dev.GPULayers(cfg.Model.GPULayers))
	fmt.Fprintf(out, "Platform:    %s\n", system.Platform())
	fmt.Fprintf(out, "CPUs:        %d\n", runtime.NumCPU())

	ram, err := system.GetRAMInfo()
	if err != nil {
		fmt.Fprintf(out, "RAM:         unknown (%v)\n", err)
		return nil
	}
	usable, _ := system.EstimateUsableRAM()
	fmt.Fprintf(out, "RAM:         %s total, %s available, %s usable for models\n",
		system.FormatBytes(ram.TotalBytes),
		system.FormatBytes(ram.AvailableBytes),
		system.FormatBytes(usable))
	return nil
}
