package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"p9e.in/qareports/config"
	"p9e.in/qareports/pkg/offline"
)

// field commands run on the inspector's device against a local queue.
var (
	fieldUser    string
	photoSection string
	photoItem    string
	photoTag     string
	photoCaption string
)

var fieldCmd = &cobra.Command{
	Use:   "field",
	Short: "Offline field client: queue drafts and photos, sync when online",
}

var draftSaveCmd = &cobra.Command{
	Use:   "save-draft <draft.json> [local-id]",
	Short: "Save a draft to the local queue",
	Long: `Save a draft report to the local queue. The JSON file holds the draft
fields (schoolId, reportType, inspectionDate, responses, ...). Pass the
local id printed by an earlier save to overwrite that draft.

Examples:
  qareports field save-draft draft.json
  qareports field save-draft draft.json 3`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDraftSave,
}

var photoAddCmd = &cobra.Command{
	Use:   "add-photo <local-id> <image>",
	Short: "Queue a photo for a local draft",
	Args:  cobra.ExactArgs(2),
	RunE:  runPhotoAdd,
}

var fieldStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(ctx context.Context, c *offline.Coordinator, _ offline.Remote) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			drafts, err := c.Store().ListDrafts(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"status": st, "drafts": drafts})
		})
	},
}

var fieldSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Probe the server and run one sync pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(ctx context.Context, c *offline.Coordinator, remote offline.Remote) error {
			if !offline.NewMonitor(c, remote, settings.FieldProbe).Probe(ctx) {
				return fmt.Errorf("server %s is unreachable; drafts stay queued", settings.FieldServerURL)
			}
			// Probe already ran the pass triggered by coming online.
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(st)
		})
	},
}

var fieldWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep syncing in the background until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCoordinator(func(ctx context.Context, c *offline.Coordinator, remote offline.Remote) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go offline.NewMonitor(c, remote, settings.FieldProbe).Run(ctx)
			config.GetLogger().WithFields(logrus.Fields{
				"server":   settings.FieldServerURL,
				"store":    settings.FieldDBPath,
				"debounce": settings.FieldDebounce,
				"periodic": settings.FieldPeriodic,
			}).Info("👀 field sync running")
			offline.NewAutosaver(c, settings.FieldDebounce, settings.FieldPeriodic).Run(ctx)
			return nil
		})
	},
}

func init() {
	fieldCmd.PersistentFlags().StringVar(&fieldUser, "user", os.Getenv("FIELD_USER_ID"), "inspector id sent as X-User-ID")
	photoAddCmd.Flags().StringVar(&photoSection, "section", "", "section key")
	photoAddCmd.Flags().StringVar(&photoItem, "item", "", "item key within --section")
	photoAddCmd.Flags().StringVar(&photoTag, "tag", "", "location tag used to pair before/after photos")
	photoAddCmd.Flags().StringVar(&photoCaption, "caption", "", "caption")

	fieldCmd.AddCommand(draftSaveCmd, photoAddCmd, fieldStatusCmd, fieldSyncCmd, fieldWatchCmd)
}

func withCoordinator(fn func(ctx context.Context, c *offline.Coordinator, remote offline.Remote) error) error {
	store, err := offline.OpenStore(settings.FieldDBPath)
	if err != nil {
		return err
	}
	remote := offline.NewHTTPRemote(settings.FieldServerURL, fieldUser, settings.FieldHTTPTimeout)
	return fn(context.Background(), offline.NewCoordinator(store, remote), remote)
}

func parseLocalID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("local id %q: %w", raw, err)
	}
	return uint(n), nil
}

func runDraftSave(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	var d offline.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}
	d.LocalID = 0
	if len(args) == 2 {
		if d.LocalID, err = parseLocalID(args[1]); err != nil {
			return err
		}
	}

	return withCoordinator(func(ctx context.Context, c *offline.Coordinator, _ offline.Remote) error {
		if err := c.SaveDraft(ctx, &d); err != nil {
			return err
		}
		return printJSON(map[string]any{"localId": d.LocalID, "clientKey": d.ClientKey, "revision": d.Revision})
	})
}

func runPhotoAdd(cmd *cobra.Command, args []string) error {
	localID, err := parseLocalID(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[1], err)
	}
	p := &offline.PendingPhoto{
		DraftLocalID: localID,
		SectionKey:   photoSection,
		ItemKey:      photoItem,
		LocationTag:  photoTag,
		Caption:      photoCaption,
		Filename:     filepath.Base(args[1]),
		Data:         data,
	}
	return withCoordinator(func(ctx context.Context, c *offline.Coordinator, _ offline.Remote) error {
		if err := c.QueuePhoto(ctx, p); err != nil {
			return err
		}
		return printJSON(map[string]any{"photoId": p.LocalID, "draftLocalId": localID})
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
