package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-cache-policy/cache"
)

type keyOptions struct {
	namespace string
	ids       []string
}

func (o *keyOptions) bind(cmd *cobra.Command) {
	o.bindOptionalIDs(cmd)
	_ = cmd.MarkFlagRequired("id")
}

func (o *keyOptions) bindOptionalIDs(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.namespace, "namespace", "n", "", "Key namespace")
	cmd.Flags().StringArrayVar(&o.ids, "id", nil, "Object id (repeatable)")
	_ = cmd.MarkFlagRequired("namespace")
}

func (o *keyOptions) keys() ([]string, error) {
	return cache.BuildKeys(o.ids, o.namespace)
}

func (a *App) newKeyCmd() *cobra.Command {
	opts := &keyOptions{}

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the cache key for an object id",
		Long: `Print the cache key the mediators use for an object id in a namespace.

Examples:
  cachectl key --namespace users --id 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := opts.keys()
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(a.stdout, key)
			}
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func (a *App) newGetCmd() *cobra.Command {
	opts := &keyOptions{}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the cached entry for an object id",
		Long: `Fetch entries from the configured backend and report each one as
present (with its value), absent (a cached "no such record") or miss.

Examples:
  cachectl --config cache.yaml get --namespace users --id 42 --id 43`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := opts.keys()
			if err != nil {
				return err
			}

			client, closeFn, err := a.openClient()
			if err != nil {
				return err
			}
			defer closeFn()

			found, err := client.GetMany(cmd.Context(), keys)
			if err != nil {
				return fmt.Errorf("read entries: %w", err)
			}

			for _, key := range keys {
				data, ok := found[key]
				if !ok {
					fmt.Fprintf(a.stdout, "%s\tmiss\n", key)
					continue
				}
				entry, err := cache.DecodeEntry[any](nil, data)
				if err != nil {
					fmt.Fprintf(a.stdout, "%s\tcorrupt\t%v\n", key, err)
					continue
				}
				if entry.IsAbsent() {
					fmt.Fprintf(a.stdout, "%s\tabsent\n", key)
					continue
				}
				fmt.Fprintf(a.stdout, "%s\tpresent\t%v\n", key, entry.Unwrap())
			}
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func (a *App) newInvalidateCmd() *cobra.Command {
	opts := &keyOptions{}
	var all bool

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete cached entries",
		Long: `Delete the entries of one or more object ids with a single bulk call,
or every entry of a namespace with --all.

Examples:
  cachectl --config cache.yaml invalidate --namespace users --id 42 --id 43
  cachectl --config cache.yaml invalidate --namespace users --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(opts.ids) > 0) {
				return fmt.Errorf("pass either --all or at least one --id")
			}
			if all {
				return a.invalidateNamespace(cmd, opts.namespace)
			}

			keys, err := opts.keys()
			if err != nil {
				return err
			}

			client, closeFn, err := a.openClient()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := client.DeleteMany(cmd.Context(), keys); err != nil {
				return fmt.Errorf("delete entries: %w", err)
			}
			fmt.Fprintf(a.stdout, "invalidated %d key(s)\n", len(keys))
			return nil
		},
	}
	opts.bindOptionalIDs(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "Delete every entry of the namespace")
	return cmd
}

func (a *App) invalidateNamespace(cmd *cobra.Command, namespace string) error {
	if err := cache.ValidateNamespace(namespace); err != nil {
		return err
	}

	client, closeFn, err := a.openClient()
	if err != nil {
		return err
	}
	defer closeFn()

	pd, ok := cache.AsPrefixDeleter(client)
	if !ok {
		return fmt.Errorf("backend cannot delete by prefix")
	}
	removed, err := pd.DeleteByPrefix(cmd.Context(), namespace+cache.KeySeparator)
	if err != nil {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	fmt.Fprintf(a.stdout, "invalidated %d key(s)\n", removed)
	return nil
}
