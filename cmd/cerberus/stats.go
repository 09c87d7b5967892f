package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate secret store statistics",
	RunE:  runStats,
}

func runStats(_ *cobra.Command, _ []string) error {
	sc, err := initShared()
	if err != nil {
		return err
	}
	defer sc.Cleanup()
	ctx := context.Background()

	nodes, err := sc.Secure.TotalDataNodeCount(ctx)
	if err != nil {
		return err
	}
	pairs, err := sc.Secure.TotalKeyValuePairCount(ctx)
	if err != nil {
		return err
	}
	_, total, err := sc.Store.SafeDepositBoxes().ListPage(ctx, 1, 0)
	if err != nil {
		return err
	}

	fmt.Printf("safe deposit boxes:    %d\n", total)
	fmt.Printf("secret data nodes:     %d\n", nodes)
	fmt.Printf("key/value pairs:       %d\n", pairs)
	return nil
}
