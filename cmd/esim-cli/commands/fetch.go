package commands

import (
	"bytes"
	"encoding/json"
	"esimassist-backend/internal/fetch"
	"esimassist-backend/pkg/serviceutil"
	"fmt"
	"net/url"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	fetchForm  []string
	fetchKind  string
	fetchShape string
	fetchHtml  bool
)

func init() {
	fetchCmd.Flags().StringArrayVar(&fetchForm, "form", nil, "Form value to POST as key=value, may be repeated.")
	fetchCmd.Flags().StringVar(&fetchKind, "kind", "auto", "Payload kind: auto, structured or markup.")
	fetchCmd.Flags().StringVar(&fetchShape, "shape", "url", "Result shape of markup fetches: url, document or document-url.")
	fetchCmd.Flags().BoolVar(&fetchHtml, "html", false, "Print the whole fetched document.")
	rootCmd.AddCommand(fetchCmd)
}

func parseForm(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	form := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("form value %q is not key=value", pair)
		}
		form.Add(key, value)
	}
	return form, nil
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url> [--form key=value]... [--kind auto|structured|markup] [--shape url|document|document-url]",
	Short: "Fetches a page, logging in first if the session expired.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := fetch.ParseKind(fetchKind)
		if err != nil {
			return err
		}
		shape, err := fetch.ParseShape(fetchShape)
		if err != nil {
			return err
		}
		form, err := parseForm(fetchForm)
		if err != nil {
			return err
		}

		a := loadApp()
		defer a.Close()

		out, err := a.Manager.Fetch(cmd.Context(), fetch.Request{
			URL:   args[0],
			Form:  form,
			Kind:  kind,
			Shape: shape,
		})
		if err != nil {
			serviceutil.Fatal("fetch failed", err)
		}

		if out.Payload != nil {
			var indented bytes.Buffer
			err := json.Indent(&indented, out.Payload.Raw, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(indented.String())
			return nil
		}

		if fetchHtml && out.Document != nil {
			html, err := out.Document.Html()
			if err != nil {
				return err
			}
			fmt.Println(html)
			return nil
		}

		t := newTable()
		t.AppendHeader(table.Row{"field", "value"})
		if out.FinalURL != "" {
			t.AppendRow(table.Row{"final url", out.FinalURL})
		}
		if out.Document != nil {
			t.AppendRow(table.Row{"title", strings.TrimSpace(out.Document.Find("title").Text())})
			t.AppendRow(table.Row{"forms", out.Document.Find("form").Length()})
			t.AppendRow(table.Row{"links", out.Document.Find("a[href]").Length()})
		}
		t.Render()
		return nil
	},
}
