package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iudanet/labportal/internal/client/api"
)

func (c *Cli) runGet(ctx context.Context, args []string) error {
	fs := c.newFlagSet("get")
	role := fs.String("role", "", "Require this role before fetching")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: labctl get PATH")
	}
	path := fs.Arg(0)

	if err := c.authorize(ctx, *role, path); err != nil {
		return err
	}

	var raw []byte
	if err := c.app.Client.Get(ctx, path, &raw); err != nil {
		return fmt.Errorf("GET %s failed: %w", path, err)
	}
	c.printJSON(raw)
	return nil
}

func (c *Cli) runPost(ctx context.Context, args []string) error {
	fs := c.newFlagSet("post")
	role := fs.String("role", "", "Require this role before sending")
	data := fs.String("data", "", "JSON body")
	fields := fs.StringArray("field", nil, "Form field NAME=VALUE (multipart)")
	files := fs.StringArray("file", nil, "File FIELD=PATH (multipart)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: labctl post PATH [--data JSON | --field NAME=VALUE --file FIELD=PATH]")
	}
	path := fs.Arg(0)

	body, err := buildBody(*data, *fields, *files)
	if err != nil {
		return err
	}

	if err := c.authorize(ctx, *role, path); err != nil {
		return err
	}

	var raw []byte
	if err := c.app.Client.Post(ctx, path, body, &raw); err != nil {
		return fmt.Errorf("POST %s failed: %w", path, err)
	}
	c.printJSON(raw)
	return nil
}

// authorize проверяет доступ до запроса к защищенному ресурсу
func (c *Cli) authorize(ctx context.Context, role, path string) error {
	d, err := c.await(ctx, role, path)
	if err != nil {
		return err
	}
	return decisionError(d, role)
}

// buildBody собирает тело: multipart для файлов и полей, иначе JSON
func buildBody(data string, fields, files []string) (any, error) {
	if len(fields) == 0 && len(files) == 0 {
		if data == "" {
			return nil, nil
		}
		if !json.Valid([]byte(data)) {
			return nil, fmt.Errorf("--data is not valid JSON")
		}
		return api.RawBody{Reader: strings.NewReader(data), ContentType: "application/json"}, nil
	}
	if data != "" {
		return nil, fmt.Errorf("--data cannot be combined with --field/--file")
	}

	m := api.NewMultipart()
	for _, f := range fields {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --field %q, expected NAME=VALUE", f)
		}
		m.Field(name, value)
	}
	for _, f := range files {
		field, path, ok := strings.Cut(f, "=")
		if !ok || field == "" || path == "" {
			return nil, fmt.Errorf("invalid --file %q, expected FIELD=PATH", f)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		m.File(field, filepath.Base(path), bytes.NewReader(content))
	}
	return m, nil
}

// printJSON печатает тело с отступами; завершающий перевод строки ровно один
func (c *Cli) printJSON(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		c.io.Println("(empty response)")
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		_, _ = c.io.Write(raw)
		c.io.Println()
		return
	}
	out.WriteByte('\n')
	_, _ = c.io.Write(out.Bytes())
}
