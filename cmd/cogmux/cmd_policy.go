package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	policyAutoSwitch bool
	policyThreshold  float64
	policyLearning   bool
)

// policyCmd inspects and updates the auto-switch policy
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and update the auto-switch policy",
	RunE:  showPolicy,
}

var policySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the auto-switch policy",
	Long: `Updates the persisted auto-switch policy. Only flags given on the
command line change; everything else keeps its current value.

Examples:
  cogmux policy set --auto-switch=false
  cogmux policy set --threshold 0.3 --learning`,
	RunE: setPolicy,
}

func init() {
	policySetCmd.Flags().BoolVar(&policyAutoSwitch, "auto-switch", true, "Allow automatic mode switching")
	policySetCmd.Flags().Float64Var(&policyThreshold, "threshold", 0.2, "Confidence gain required for an automatic switch")
	policySetCmd.Flags().BoolVar(&policyLearning, "learning", false, "Record mode-transition patterns")

	policyCmd.AddCommand(policySetCmd)
}

func showPolicy(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	p := rt.engine.Policy()
	fmt.Printf("auto-switch: %v\n", p.Enabled)
	fmt.Printf("threshold:   %.2f\n", p.Threshold)
	fmt.Printf("learning:    %v\n", p.LearningEnabled)
	return nil
}

func setPolicy(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	p := rt.engine.Policy()
	if cmd.Flags().Changed("auto-switch") {
		p.Enabled = policyAutoSwitch
	}
	if cmd.Flags().Changed("threshold") {
		p.Threshold = policyThreshold
	}
	if cmd.Flags().Changed("learning") {
		p.LearningEnabled = policyLearning
	}

	if err := rt.engine.UpdatePolicy(p); err != nil {
		return err
	}
	if err := rt.store.SavePolicy(p); err != nil {
		return err
	}

	fmt.Printf("policy saved: auto-switch=%v threshold=%.2f learning=%v\n",
		p.Enabled, p.Threshold, p.LearningEnabled)
	return nil
}
