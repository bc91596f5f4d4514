// File: internal/generator/fallback.go
package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

// Fallback deterministically renders an express service from the contract's
// definition layer. It exists so generation always succeeds offline and so
// there is a known-good last resort when the model keeps failing validation.
type Fallback struct {
	logger *zap.Logger
}

func NewFallback(logger *zap.Logger) *Fallback {
	return &Fallback{logger: logger.Named("generator.fallback")}
}

func (g *Fallback) Generate(_ context.Context, contract *schemas.Contract, trigger schemas.TriggerKind, _ string) (*schemas.FileSet, error) {
	files := []schemas.FileSpec{
		{Path: "package.json", Content: packageJSON(contract), Target: "api"},
		{Path: "Dockerfile", Content: dockerfile(), Target: "infra"},
	}

	var mounts []mountPoint
	for _, entity := range contract.Definition.Entities {
		base := basePathFor(contract, entity.Name)
		routeFile := "src/routes/" + strings.TrimPrefix(base, "/") + ".js"
		files = append(files, schemas.FileSpec{
			Path:    routeFile,
			Content: routeModule(entity, base),
			Target:  "api",
		})
		mounts = append(mounts, mountPoint{base: base, file: "./routes/" + strings.TrimPrefix(base, "/")})
	}
	files = append(files, schemas.FileSpec{Path: "src/index.js", Content: indexModule(mounts), Target: "api"})

	fileSet, err := schemas.NewFileSet(files)
	if err != nil {
		return nil, err
	}
	g.logger.Info("Fallback FileSet rendered",
		zap.String("contract", contract.Name),
		zap.String("trigger", string(trigger)),
		zap.Int("files", len(files)),
	)
	return fileSet, nil
}

type mountPoint struct {
	base string
	file string
}

// basePathFor prefers the declared resource path and derives a pluralized one
// otherwise.
func basePathFor(contract *schemas.Contract, entity string) string {
	for _, r := range contract.Definition.Resources {
		if r.Entity == entity && r.BasePath != "" {
			return r.BasePath
		}
	}
	return "/" + pluralize(strings.ToLower(entity))
}

func pluralize(s string) string {
	switch {
	case strings.HasSuffix(s, "y"):
		return strings.TrimSuffix(s, "y") + "ies"
	case strings.HasSuffix(s, "s"):
		return s
	default:
		return s + "s"
	}
}

func packageJSON(contract *schemas.Contract) string {
	name := strings.ToLower(strings.ReplaceAll(contract.Name, " ", "-"))
	if name == "" {
		name = "generated-service"
	}
	return fmt.Sprintf(`{
  "name": %q,
  "version": "1.0.0",
  "private": true,
  "main": "src/index.js",
  "scripts": {
    "start": "node src/index.js"
  },
  "dependencies": {
    "express": "^4.19.0"
  }
}
`, name)
}

func dockerfile() string {
	return `FROM node:20-alpine
WORKDIR /app
COPY package.json ./
RUN npm install --omit=dev
COPY . .
EXPOSE 3000
CMD ["npm", "start"]
`
}

func indexModule(mounts []mountPoint) string {
	var sb strings.Builder
	sb.WriteString("const express = require('express');\n")
	for _, m := range mounts {
		fmt.Fprintf(&sb, "const %sRouter = require('%s');\n", routerIdent(m.base), m.file)
	}
	sb.WriteString(`
const app = express();
app.use(express.json());

app.get('/health', (req, res) => {
  res.status(200).json({ status: 'ok', uptime: process.uptime() });
});
`)
	for _, m := range mounts {
		fmt.Fprintf(&sb, "app.use('%s', %sRouter);\n", m.base, routerIdent(m.base))
	}
	sb.WriteString(`
const port = process.env.PORT || 3000;
if (require.main === module) {
  app.listen(port, () => {
    process.stdout.write('listening on ' + port + '\n');
  });
}

module.exports = app;
`)
	return sb.String()
}

func routerIdent(base string) string {
	ident := strings.TrimPrefix(base, "/")
	ident = strings.ReplaceAll(ident, "/", "_")
	ident = strings.ReplaceAll(ident, "-", "_")
	if ident == "" {
		ident = "root"
	}
	return ident
}

// routeModule renders an in-memory CRUD router for one entity, including the
// validation the contract's field formats call for.
func routeModule(entity schemas.Entity, base string) string {
	store := pluralize(strings.ToLower(entity.Name))
	var guards strings.Builder
	for _, field := range entity.Fields {
		if field.Required {
			fmt.Fprintf(&guards, `  if (req.body.%s === undefined || req.body.%s === null) {
    return res.status(400).json({ error: '%s is required' });
  }
`, field.Name, field.Name, field.Name)
		}
		if field.Format == "email" {
			fmt.Fprintf(&guards, `  if (req.body.%s && !String(req.body.%s).includes('@')) {
    return res.status(400).json({ error: '%s must be a valid email' });
  }
`, field.Name, field.Name, field.Name)
		}
	}
	if guards.Len() == 0 {
		guards.WriteString(`  if (!req.body || typeof req.body !== 'object') {
    return res.status(400).json({ error: 'invalid payload' });
  }
`)
	}

	return fmt.Sprintf(`const express = require('express');
const router = express.Router();

const %[1]s = {};
let nextId = 1;

function validate(req, res) {
%[2]s  return null;
}

router.get('/', (req, res) => {
  try {
    res.json(Object.values(%[1]s));
  } catch (err) {
    res.status(500).json({ error: err.message });
  }
});

router.get('/:id', (req, res) => {
  try {
    const item = %[1]s[req.params.id];
    if (!item) {
      return res.status(404).json({ error: 'not found' });
    }
    res.json(item);
  } catch (err) {
    res.status(500).json({ error: err.message });
  }
});

router.post('/', (req, res) => {
  try {
    const invalid = validate(req, res);
    if (invalid !== null) {
      return invalid;
    }
    const id = String(nextId);
    nextId += 1;
    const item = Object.assign({ id: id }, req.body);
    %[1]s[id] = item;
    res.status(201).json(item);
  } catch (err) {
    res.status(500).json({ error: err.message });
  }
});

router.put('/:id', (req, res) => {
  try {
    const existing = %[1]s[req.params.id];
    if (!existing) {
      return res.status(404).json({ error: 'not found' });
    }
    const updated = Object.assign({}, existing, req.body, { id: existing.id });
    %[1]s[req.params.id] = updated;
    res.json(updated);
  } catch (err) {
    res.status(500).json({ error: err.message });
  }
});

router.delete('/:id', (req, res) => {
  try {
    if (!%[1]s[req.params.id]) {
      return res.status(404).json({ error: 'not found' });
    }
    delete %[1]s[req.params.id];
    res.status(204).end();
  } catch (err) {
    res.status(500).json({ error: err.message });
  }
});

module.exports = router;
`, store, guards.String())
}
