package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/wp-orm/wpmeta/internal/cli/ui"
	"github.com/wp-orm/wpmeta/internal/orm/meta"
	"github.com/wp-orm/wpmeta/internal/orm/model"
	"github.com/wp-orm/wpmeta/internal/orm/result"
)

// confirm asks a yes/no question on the terminal. Tests replace it.
var confirm = func(message string) (bool, error) {
	ok := false
	prompt := &survey.Confirm{Message: message, Default: false}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// NewMetaCommand creates the meta command
func NewMetaCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Read and write object metadata",
		Long: `Read and write the metadata of a post, user, term or comment.

Every write is staged on the object and saved at once. The save prints one
result per row written; the command fails if any of them failed.`,
		Example: `  # List every meta of post 42
  wpmeta meta list post 42

  # Add a second value under a multi-valued key
  wpmeta meta add post 42 tag featured

  # Store a structured value
  wpmeta meta update user 7 settings '{"theme":"dark"}' --json

  # Remove one value of a key
  wpmeta meta delete post 42 tag featured`,
	}

	cmd.AddCommand(newMetaListCommand(opts))
	cmd.AddCommand(newMetaGetCommand(opts))
	cmd.AddCommand(newMetaWriteCommand(opts, "add", "Add a value under a key, next to existing values",
		func(c *metaCall) result.Result { return c.obj.CreateMeta(c.key, c.value) }))
	cmd.AddCommand(newMetaWriteCommand(opts, "update", "Set the single value of a key, creating it if missing",
		func(c *metaCall) result.Result { return c.obj.UpdateMeta(c.cmd.Context(), c.key, c.value) }))
	cmd.AddCommand(newMetaWriteCommand(opts, "replace", "Replace every value of a key with one value",
		func(c *metaCall) result.Result { return c.obj.ReplaceMeta(c.cmd.Context(), c.key, c.value) }))
	cmd.AddCommand(newMetaDeleteCommand(opts))

	return cmd
}

// metaCall is one staged write against an object
type metaCall struct {
	cmd   *cobra.Command
	obj   *model.Object
	key   string
	value interface{}
}

func parseObject(typeArg, idArg string) (meta.ObjectType, int64, error) {
	objectType, err := meta.ParseObjectType(typeArg)
	if err != nil {
		return "", 0, err
	}
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("object id must be a positive integer, got %q", idArg)
	}
	return objectType, id, nil
}

// parseValue reads a value as a plain string, or as JSON when asJSON is set
func parseValue(raw string, asJSON bool) (interface{}, error) {
	if !asJSON {
		return raw, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON value: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("null is not a meta value, use delete instead")
	}
	return v, nil
}

// formatValue renders a meta value on one line
func formatValue(v interface{}) string {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
	}
	return cast.ToString(v)
}

func newMetaListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list TYPE ID",
		Short: "List every meta of an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			objectType, id, err := parseObject(args[0], args[1])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			obj := model.ObjectByID(objectType, id, a.store, a.logger)
			if err := obj.Preload(cmd.Context()); err != nil {
				return err
			}

			table := ui.NewTable(cmd.OutOrStdout(), color.NoColor, "KEY", "VALUE")
			for _, key := range obj.Keys() {
				entries, err := obj.GetMetas(cmd.Context(), key)
				if err != nil {
					return err
				}
				for _, e := range entries {
					table.AddRow(key, formatValue(e.Value()))
				}
			}
			if table.Len() == 0 {
				color.New(color.FgCyan).Fprintf(cmd.OutOrStdout(), "ℹ %s %d has no meta\n", objectType, id)
				return nil
			}
			table.Render()
			return nil
		},
	}
}

func newMetaGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get TYPE ID KEY",
		Short: "Print the values of one key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			objectType, id, err := parseObject(args[0], args[1])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			obj := model.ObjectByID(objectType, id, a.store, a.logger)
			entries, err := obj.GetMetas(cmd.Context(), args[2])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("%s %d has no meta %q", objectType, id, args[2])
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), formatValue(e.Value()))
			}
			return nil
		},
	}
}

func newMetaWriteCommand(opts *rootOptions, use, short string, stage func(*metaCall) result.Result) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   use + " TYPE ID KEY VALUE",
		Short: short,
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			objectType, id, err := parseObject(args[0], args[1])
			if err != nil {
				return err
			}
			value, err := parseValue(args[3], asJSON)
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c := &metaCall{
				cmd:   cmd,
				obj:   model.ObjectByID(objectType, id, a.store, a.logger),
				key:   args[2],
				value: value,
			}
			return save(cmd, c.obj, stage(c))
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Parse VALUE as JSON")
	return cmd
}

func newMetaDeleteCommand(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "delete TYPE ID KEY [VALUE]",
		Short: "Delete one value of a key, or all of them",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			objectType, id, err := parseObject(args[0], args[1])
			if err != nil {
				return err
			}
			key := args[2]

			var value interface{}
			if len(args) == 4 {
				if value, err = parseValue(args[3], asJSON); err != nil {
					return err
				}
			} else if !yes {
				ok, err := confirm(fmt.Sprintf("Delete every value of %q on %s %d?", key, objectType, id))
				if err != nil {
					return err
				}
				if !ok {
					color.New(color.FgCyan).Fprintln(cmd.OutOrStdout(), "ℹ Delete cancelled")
					return nil
				}
			}

			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			obj := model.ObjectByID(objectType, id, a.store, a.logger)
			return save(cmd, obj, obj.DeleteMeta(cmd.Context(), key, value))
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Parse VALUE as JSON")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation when deleting every value")
	return cmd
}

// save flushes the object unless staging failed, and prints the results
func save(cmd *cobra.Command, obj *model.Object, staged result.Result) error {
	if staged.IsError() {
		return fmt.Errorf("%s: %s", staged.Code(), staged.Message())
	}
	results := obj.Save(cmd.Context())
	ui.Results(cmd.OutOrStdout(), results, color.NoColor)
	return results.Err()
}
