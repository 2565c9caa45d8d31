package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/cli"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/spf13/cobra"
)

func hierarchyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "hierarchy",
		Aliases: []string{"h"},
		Short:   "Browse and extend the universe, category and product hierarchy",
	}

	cmd.AddCommand(hierarchyUniversesCmd())
	cmd.AddCommand(hierarchyCategoriesCmd())
	cmd.AddCommand(hierarchyProductsCmd())
	cmd.AddCommand(hierarchyCreateCategoryCmd())
	cmd.AddCommand(hierarchyCreateProductCmd())
	return cmd
}

// withClient loads configuration and storage and hands fn a client.
func withClient(cmd *cobra.Command, fn func(client *api.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}()

	client, err := newClient(cmd.Context(), cfg, store)
	if err != nil {
		return err
	}
	return fn(client)
}

func optionalID(cmd *cobra.Command, flag string) *int {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(flag)
	return model.IntPtr(v)
}

func hierarchyUniversesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "universes",
		Short: "List universes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(client *api.Client) error {
				universes, err := client.ListUniverses(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][2]string, len(universes))
				for i, u := range universes {
					rows[i] = [2]string{strconv.Itoa(u.ID), u.Name}
				}
				return cli.WriteNamed(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func hierarchyCategoriesCmd() *cobra.Command {
	var universeID int
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the categories of a universe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(client *api.Client) error {
				categories, err := client.ListCategories(cmd.Context(), universeID)
				if err != nil {
					return err
				}
				rows := make([][2]string, len(categories))
				for i, c := range categories {
					rows[i] = [2]string{strconv.Itoa(c.ID), c.Name}
				}
				return cli.WriteNamed(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().IntVar(&universeID, "universe", 0, "universe id")
	_ = cmd.MarkFlagRequired("universe")
	return cmd
}

func hierarchyProductsCmd() *cobra.Command {
	var universeID int
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the products of a universe, optionally within one category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(client *api.Client) error {
				products, err := client.ListProducts(cmd.Context(), universeID, optionalID(cmd, "category"))
				if err != nil {
					return err
				}
				rows := make([][2]string, len(products))
				for i, p := range products {
					rows[i] = [2]string{strconv.Itoa(p.ID), p.Name}
				}
				return cli.WriteNamed(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().IntVar(&universeID, "universe", 0, "universe id")
	cmd.Flags().Int("category", 0, "category id")
	_ = cmd.MarkFlagRequired("universe")
	return cmd
}

func hierarchyCreateCategoryCmd() *cobra.Command {
	var universeID int
	cmd := &cobra.Command{
		Use:   "create-category <name>",
		Short: "Create a category in a universe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(client *api.Client) error {
				category, err := client.CreateCategory(cmd.Context(), args[0], universeID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created category %s (id %d)", category.Name, category.ID)))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&universeID, "universe", 0, "universe id")
	_ = cmd.MarkFlagRequired("universe")
	return cmd
}

func hierarchyCreateProductCmd() *cobra.Command {
	var universeID int
	cmd := &cobra.Command{
		Use:   "create-product <name>",
		Short: "Create a product in a universe, optionally within a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(client *api.Client) error {
				product, err := client.CreateProduct(cmd.Context(), args[0], universeID, optionalID(cmd, "category"))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created product %s (id %d)", product.Name, product.ID)))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&universeID, "universe", 0, "universe id")
	cmd.Flags().Int("category", 0, "category id")
	_ = cmd.MarkFlagRequired("universe")
	return cmd
}
