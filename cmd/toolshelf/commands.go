package main

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/toolshelf/internal/config"
	"github.com/kalambet/toolshelf/internal/exchange"
	"github.com/kalambet/toolshelf/internal/storage"
)

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	tags := strings.Split(s, ",")
	for i := range tags {
		tags[i] = strings.TrimSpace(tags[i])
	}
	return tags
}

func fetchTool(ctx context.Context, client *apiClient, id string) (storage.Tool, error) {
	var tool storage.Tool
	resp, err := client.get(ctx, "/api/tools/"+url.PathEscape(id))
	if err != nil {
		return tool, err
	}
	return tool, decodeJSON(resp, &tool)
}

func printTools(list []storage.Tool) {
	if len(list) == 0 {
		fmt.Println("No tools found.")
		return
	}
	for _, t := range list {
		tags := ""
		if len(t.Tags) > 0 {
			tags = "  [" + strings.Join(t.Tags, ", ") + "]"
		}
		fmt.Printf("%s  v%-3d %-5s %s%s\n", colorize(colorCyan, shortID(t.ID)), t.Version, t.ToolType, t.Name, tags)
	}
}

// --- tools ---

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Manage stored tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List tools, or search them",
	Long: `List tools, newest first. With a query, search by relevance.

Examples:
  toolshelf tools list
  toolshelf tools list --tag finance
  toolshelf tools list 'name:timer tag:kitchen'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if len(args) > 0 {
			q.Set("q", strings.Join(args, " "))
		}
		if tag != "" {
			q.Set("tag", tag)
		}
		q.Set("limit", strconv.Itoa(limit))

		resp, err := client.get(cmd.Context(), "/api/tools?"+q.Encode())
		if err != nil {
			return err
		}
		var list []storage.Tool
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		printTools(list)
		return nil
	},
}

var toolsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a tool's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		tool, err := fetchTool(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, tool)
	},
}

var toolsContentCmd = &cobra.Command{
	Use:   "content <id>",
	Short: "Print a tool's HTML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/tools/"+url.PathEscape(args[0])+"/content")
		if err != nil {
			return err
		}
		body, err := readBody(resp)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(body)
		return err
	},
}

var toolsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a tool from an HTML or JSX file",
	Long: `Create a tool from an HTML or JSX file.

Examples:
  toolshelf tools create --name "Unit converter" --file ./converter.html --tags units,kitchen
  toolshelf tools create --name Chart --file ./chart.jsx --type react`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		file, _ := cmd.Flags().GetString("file")
		desc, _ := cmd.Flags().GetString("description")
		tagsStr, _ := cmd.Flags().GetString("tags")
		toolType, _ := cmd.Flags().GetString("type")

		if name == "" || file == "" {
			return fmt.Errorf("--name and --file are required")
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/tools", map[string]any{
			"name":         name,
			"description":  desc,
			"tags":         splitTags(tagsStr),
			"tool_type":    toolType,
			"html_content": string(content),
		})
		if err != nil {
			return err
		}
		var tool storage.Tool
		if err := decodeJSON(resp, &tool); err != nil {
			return err
		}
		printSuccess("Created %s tool %s (%s)", tool.ToolType, tool.Name, tool.ID)
		return nil
	},
}

var toolsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a tool's metadata or content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		tool, err := fetchTool(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}

		body := map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"tags":        tool.Tags,
			"version":     tool.Version,
		}
		if cmd.Flags().Changed("name") {
			body["name"], _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("description") {
			body["description"], _ = cmd.Flags().GetString("description")
		}
		if cmd.Flags().Changed("tags") {
			tagsStr, _ := cmd.Flags().GetString("tags")
			body["tags"] = splitTags(tagsStr)
		}
		if cmd.Flags().Changed("version") {
			body["version"], _ = cmd.Flags().GetInt("version")
		}
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			body["html_content"] = string(content)
		}

		resp, err := client.put(cmd.Context(), "/api/tools/"+url.PathEscape(tool.ID), body)
		if err != nil {
			return err
		}
		var updated storage.Tool
		if err := decodeJSON(resp, &updated); err != nil {
			return err
		}
		printSuccess("Updated %s to version %d", updated.Name, updated.Version)
		return nil
	},
}

var toolsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Open a tool's HTML in $EDITOR and save it back",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		tool, err := fetchTool(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/tools/"+url.PathEscape(tool.ID)+"/content")
		if err != nil {
			return err
		}
		original, err := readBody(resp)
		if err != nil {
			return err
		}

		tmpFile, err := os.CreateTemp("", "toolshelf-*.html")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)
		if _, err := tmpFile.Write(original); err != nil {
			tmpFile.Close()
			return err
		}
		tmpFile.Close()

		editorCmd := exec.Command(editor, tmpPath)
		editorCmd.Stdin = os.Stdin
		editorCmd.Stdout = os.Stdout
		editorCmd.Stderr = os.Stderr
		if err := editorCmd.Run(); err != nil {
			return fmt.Errorf("editor exited with error: %w", err)
		}

		edited, err := os.ReadFile(tmpPath)
		if err != nil {
			return err
		}
		if bytes.Equal(edited, original) {
			printWarning("No changes")
			return nil
		}

		resp, err = client.put(cmd.Context(), "/api/tools/"+url.PathEscape(tool.ID), map[string]any{
			"name":         tool.Name,
			"description":  tool.Description,
			"tags":         tool.Tags,
			"html_content": string(edited),
			"version":      tool.Version,
		})
		if err != nil {
			return err
		}
		var updated storage.Tool
		if err := decodeJSON(resp, &updated); err != nil {
			return err
		}
		printSuccess("Saved %s as version %d", updated.Name, updated.Version)
		return nil
	},
}

var toolsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a tool and all its snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/tools/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result struct {
			SnapshotsDeleted int  `json:"snapshots_deleted"`
			FilesRemoved     bool `json:"files_removed"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted tool %s (%d snapshots)", args[0], result.SnapshotsDeleted)
		if !result.FilesRemoved {
			printWarning("Tool files could not be removed yet; removal will be retried")
		}
		return nil
	},
}

var toolsForkCmd = &cobra.Command{
	Use:   "fork <id>",
	Short: "Copy a tool into a new one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/tools/"+url.PathEscape(args[0])+"/fork", map[string]string{"name": name})
		if err != nil {
			return err
		}
		var tool storage.Tool
		if err := decodeJSON(resp, &tool); err != nil {
			return err
		}
		printSuccess("Forked into %s (%s)", tool.Name, tool.ID)
		return nil
	},
}

func init() {
	toolsListCmd.Flags().String("tag", "", "only list tools with this tag")
	toolsListCmd.Flags().Int("limit", 100, "maximum number of tools to list")

	toolsCreateCmd.Flags().String("name", "", "tool name")
	toolsCreateCmd.Flags().String("file", "", "HTML or JSX file")
	toolsCreateCmd.Flags().String("description", "", "tool description")
	toolsCreateCmd.Flags().String("tags", "", "comma-separated tags")
	toolsCreateCmd.Flags().String("type", "", "html or react (detected when omitted)")

	toolsUpdateCmd.Flags().String("name", "", "new name")
	toolsUpdateCmd.Flags().String("description", "", "new description")
	toolsUpdateCmd.Flags().String("tags", "", "new comma-separated tags")
	toolsUpdateCmd.Flags().String("file", "", "replace content with this file")
	toolsUpdateCmd.Flags().Int("version", 0, "expected version (defaults to the current one)")

	toolsForkCmd.Flags().String("name", "", "name of the new tool")

	toolsCmd.AddCommand(toolsListCmd, toolsShowCmd, toolsContentCmd, toolsCreateCmd,
		toolsUpdateCmd, toolsEditCmd, toolsDeleteCmd, toolsForkCmd)
}

// --- snapshots ---

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List, take and restore tool snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list <tool-id>",
	Short: "List a tool's snapshots, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/tools/%s/snapshots?limit=%d", url.PathEscape(args[0]), limit))
		if err != nil {
			return err
		}
		var snaps []storage.Snapshot
		if err := decodeJSON(resp, &snaps); err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, sn := range snaps {
			label := ""
			if sn.Label != nil {
				label = *sn.Label
			}
			fmt.Printf("%s  %s  %-6s %7d B  %s\n",
				colorize(colorCyan, sn.ID),
				sn.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				sn.Kind,
				len(sn.Content),
				label,
			)
		}
		return nil
	},
}

var snapshotsCreateCmd = &cobra.Command{
	Use:   "create <tool-id>",
	Short: "Save the current content as a manual snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		if cmd.Flags().Changed("name") {
			body["name"], _ = cmd.Flags().GetString("name")
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/tools/"+url.PathEscape(args[0])+"/snapshots", body)
		if err != nil {
			return err
		}
		var sn storage.Snapshot
		if err := decodeJSON(resp, &sn); err != nil {
			return err
		}
		printSuccess("Created snapshot %s", sn.ID)
		return nil
	},
}

var snapshotsRestoreCmd = &cobra.Command{
	Use:   "restore <tool-id> <snapshot-id>",
	Short: "Restore a tool's content from a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), fmt.Sprintf("/api/tools/%s/snapshots/%s/restore", url.PathEscape(args[0]), url.PathEscape(args[1])), nil)
		if err != nil {
			return err
		}
		var result struct {
			Tool           storage.Tool `json:"tool"`
			BackupSnapshot *string      `json:"backup_snapshot_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Restored; %s is now at version %d", result.Tool.Name, result.Tool.Version)
		if result.BackupSnapshot != nil {
			printStatus("Previous content saved as", "%s", *result.BackupSnapshot)
		}
		return nil
	},
}

var snapshotsDiffCmd = &cobra.Command{
	Use:   "diff <tool-id> <snapshot-id> [other-snapshot-id]",
	Short: "Show a unified diff of a snapshot against the current content or another snapshot",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/api/tools/%s/snapshots/%s/diff", url.PathEscape(args[0]), url.PathEscape(args[1]))
		if len(args) == 3 {
			path += "?compare_to=" + url.QueryEscape(args[2])
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var d struct {
			Unified string `json:"unified_diff"`
		}
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}
		if d.Unified == "" {
			fmt.Println("No differences.")
			return nil
		}
		for _, line := range strings.SplitAfter(d.Unified, "\n") {
			switch {
			case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
				fmt.Print(colorize(colorGreen, line))
			case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
				fmt.Print(colorize(colorRed, line))
			default:
				fmt.Print(line)
			}
		}
		return nil
	},
}

var snapshotsDeleteCmd = &cobra.Command{
	Use:   "delete <tool-id> <snapshot-id>",
	Short: "Delete one snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), fmt.Sprintf("/api/tools/%s/snapshots/%s", url.PathEscape(args[0]), url.PathEscape(args[1])))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted snapshot %s", args[1])
		return nil
	},
}

func init() {
	snapshotsListCmd.Flags().Int("limit", 20, "maximum number of snapshots to list")
	snapshotsCreateCmd.Flags().String("name", "", "snapshot label")
	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsCreateCmd, snapshotsRestoreCmd, snapshotsDiffCmd, snapshotsDeleteCmd)
}

// --- backup ---

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage database backups",
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/backups")
		if err != nil {
			return err
		}
		var list []struct {
			Filename  string `json:"filename"`
			SizeHuman string `json:"size_human"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No backups.")
			return nil
		}
		for _, b := range list {
			fmt.Printf("%s  %s\n", colorize(colorCyan, b.Filename), b.SizeHuman)
		}
		return nil
	},
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up the database now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/backups", nil)
		if err != nil {
			return err
		}
		var info struct {
			Filename  string `json:"filename"`
			SizeHuman string `json:"size_human"`
		}
		if err := decodeJSON(resp, &info); err != nil {
			return err
		}
		printSuccess("Created %s (%s)", info.Filename, info.SizeHuman)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <filename>",
	Short: "Replace the database contents with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/backups/"+url.PathEscape(args[0])+"/restore", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Restored %s", args[0])
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/backups/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupListCmd, backupCreateCmd, backupRestoreCmd, backupDeleteCmd)
}

// --- export / import ---

// readPassphrase returns the passphrase from TOOLSHELF_PASSPHRASE, or
// prompts for it on the terminal.
func readPassphrase(confirm bool) (string, error) {
	if p := os.Getenv("TOOLSHELF_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to read a passphrase from; set TOOLSHELF_PASSPHRASE")
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	p, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		again, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		if !bytes.Equal(p, again) {
			return "", fmt.Errorf("passphrases do not match")
		}
	}
	if len(p) == 0 {
		return "", fmt.Errorf("empty passphrase")
	}
	return string(p), nil
}

var exportCmd = &cobra.Command{
	Use:   "export <tool-id>...",
	Short: "Export tools to a msgpack file",
	Long: `Export tools to a msgpack file, optionally encrypted with a passphrase.

Examples:
  toolshelf export 0190c3e1 0190c3e2 -o tools.msgpack
  toolshelf export 0190c3e1 --encrypt -o tools.msgpack.age`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		if output == "" {
			return fmt.Errorf("--output is required")
		}

		body := map[string]any{"tool_ids": args}
		if encrypt {
			p, err := readPassphrase(true)
			if err != nil {
				return err
			}
			body["passphrase"] = p
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/tools/export", body)
		if err != nil {
			return err
		}
		data, err := readBody(resp)
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, data, 0o600); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		printSuccess("Exported to %s", output)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import tools from an export file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading import file: %w", err)
		}
		headers := map[string]string{}
		if exchange.IsEncrypted(data) {
			p, err := readPassphrase(false)
			if err != nil {
				return err
			}
			headers["X-Passphrase"] = p
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.send(cmd.Context(), "POST", "/api/tools/import", bytes.NewReader(data), exchange.ContentType, headers)
		if err != nil {
			return err
		}
		var res exchange.ImportResult
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printSuccess("Imported %d tools", res.Imported)
		if res.Skipped > 0 {
			printWarning("Skipped %d invalid entries", res.Skipped)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "file to write")
	exportCmd.Flags().Bool("encrypt", false, "encrypt the export with a passphrase")
}

// --- templates ---

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Browse and add starter templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/templates")
		if err != nil {
			return err
		}
		var cat struct {
			Templates []struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				Description string `json:"description"`
				Category    string `json:"category"`
			} `json:"templates"`
		}
		if err := decodeJSON(resp, &cat); err != nil {
			return err
		}
		if len(cat.Templates) == 0 {
			fmt.Println("No templates.")
			return nil
		}
		for _, t := range cat.Templates {
			fmt.Printf("%-20s %-12s %s\n", colorize(colorCyan, t.ID), t.Category, t.Name)
		}
		return nil
	},
}

var templatesAddCmd = &cobra.Command{
	Use:   "add <template-id>",
	Short: "Create a tool from a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/templates/"+url.PathEscape(args[0])+"/add", map[string]string{"name": name})
		if err != nil {
			return err
		}
		var tool storage.Tool
		if err := decodeJSON(resp, &tool); err != nil {
			return err
		}
		printSuccess("Created %s (%s)", tool.Name, tool.ID)
		return nil
	},
}

func init() {
	templatesAddCmd.Flags().String("name", "", "name of the new tool")
	templatesCmd.AddCommand(templatesListCmd, templatesAddCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
