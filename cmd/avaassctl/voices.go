package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 2 * time.Minute}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the synthesis voice catalog and stored voice profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var catalog struct {
			Voices []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"voices"`
		}
		if err := getJSON(cmd, "/api/voices", &catalog); err != nil {
			return err
		}
		var stored struct {
			Profiles []struct {
				ID         string    `json:"id"`
				SourceName string    `json:"source_name"`
				CreatedAt  time.Time `json:"created_at"`
			} `json:"profiles"`
		}
		if err := getJSON(cmd, "/api/voice-profiles", &stored); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VOICE\tNAME")
		for _, v := range catalog.Voices {
			fmt.Fprintf(tw, "%s\t%s\n", v.ID, v.Name)
		}
		fmt.Fprintln(tw, "\nPROFILE\tSOURCE\tCREATED")
		for _, p := range stored.Profiles {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.SourceName, p.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage voice cloning profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <reference-audio>",
	Short: "Upload a reference sample and print the new profile id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("reference_audio", filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, f); err != nil {
			return err
		}
		if err := mw.Close(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, apiURL("/api/voice-profile"), &body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		var out struct {
			ProfileID string `json:"profile_id"`
		}
		if err := doJSON(req, http.StatusCreated, &out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.ProfileID)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileCreateCmd)
	rootCmd.AddCommand(voicesCmd, profileCmd)
}

func getJSON(cmd *cobra.Command, path string, out any) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, apiURL(path), nil)
	if err != nil {
		return err
	}
	return doJSON(req, http.StatusOK, out)
}

func doJSON(req *http.Request, want int, out any) error {
	res, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&e)
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, res.StatusCode, e.Error)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
