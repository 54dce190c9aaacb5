package cmd

import (
	"context"
	"fmt"

	"github.com/rudransh-shrivastava/exchangelink/internal/pairing"
	"github.com/spf13/cobra"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "prints this client's id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd.Context(), func(ctx context.Context, st *stores) error {
			id, err := st.prefs.EnsureLocalID(ctx, pairing.GenerateID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		})
	},
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "prints the magic link a partner opens to pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd.Context(), func(ctx context.Context, st *stores) error {
			id, err := st.prefs.EnsureLocalID(ctx, pairing.GenerateID)
			if err != nil {
				return err
			}
			link, err := pairing.ShareLink(cfg.Share.BaseURL, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		})
	},
}

var pairCmd = &cobra.Command{
	Use:   "pair id-or-link",
	Short: "stores the partner to connect to",
	Long:  `stores the partner to connect to, accepts a bare id or a magic link`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd.Context(), func(ctx context.Context, st *stores) error {
			localID, err := st.prefs.EnsureLocalID(ctx, pairing.GenerateID)
			if err != nil {
				return err
			}
			raw, _, err := pairing.ParseLink(args[0])
			if err != nil {
				return err
			}
			id, err := pairing.NormalizePartnerID(raw, localID)
			if err != nil {
				return err
			}
			if err := st.prefs.SetPartnerID(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paired with %s\n", id)
			return nil
		})
	},
}

var unpairCmd = &cobra.Command{
	Use:   "unpair",
	Short: "forgets the stored partner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd.Context(), func(ctx context.Context, st *stores) error {
			return st.prefs.ClearPartnerID(ctx)
		})
	},
}

var roleCmd = &cobra.Command{
	Use:   "role [BITCOIN|USA]",
	Short: "prints or sets the stored role",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd.Context(), func(ctx context.Context, st *stores) error {
			if len(args) == 0 {
				role, err := st.prefs.Role(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), orNone(string(role)))
				return nil
			}

			role, err := parseRole(args[0])
			if err != nil {
				return err
			}
			return st.prefs.SetRole(ctx, role)
		})
	},
}

func withStores(ctx context.Context, fn func(context.Context, *stores) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStores(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, st)
}
