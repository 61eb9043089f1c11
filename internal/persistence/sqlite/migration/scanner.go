package migration

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// migrationFilePattern matches {version}_{description}.sql. Version must be
// numeric (0001, 0002, ...); description may contain letters, digits,
// underscores and hyphens.
var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// LoadFS builds a catalog from the migration files in dir of fsys. Files
// that do not end in .sql are ignored; .sql files that do not follow the
// naming convention are an error.
func LoadFS(fsys fs.FS, dir string) (Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Catalog{}, &FileError{Path: dir, Err: err}
	}

	var steps []Step
	versionMap := make(map[int64]string) // version -> filename for duplicate detection

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		filePath := path.Join(dir, entry.Name())
		content, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			return Catalog{}, &FileError{Path: filePath, Err: err}
		}

		step, err := ParseMigrationFile(entry.Name(), string(content))
		if err != nil {
			return Catalog{}, &FileError{Path: filePath, Err: err}
		}

		if existing, exists := versionMap[step.Version]; exists {
			return Catalog{}, &FileError{Path: filePath, Err: fmt.Errorf("%w: version %d found in both %s and %s",
				ErrDuplicateVersion, step.Version, existing, entry.Name())}
		}
		versionMap[step.Version] = entry.Name()
		steps = append(steps, step)
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Version < steps[j].Version
	})

	return NewCatalog(steps...), nil
}

// MustLoadFS is like LoadFS but panics on error. It is meant for catalogs
// embedded into the binary, where a malformed file is a build defect.
func MustLoadFS(fsys fs.FS, dir string) Catalog {
	catalog, err := LoadFS(fsys, dir)
	if err != nil {
		panic(fmt.Sprintf("migration: load catalog: %v", err))
	}
	return catalog
}

// ValidateFileName checks if a migration file follows the naming convention.
func ValidateFileName(filename string) error {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return fmt.Errorf("%w: filename '%s' does not match pattern '{version}_{description}.sql'",
			ErrInvalidMigrationFile, filename)
	}

	version, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil || version <= 0 {
		return fmt.Errorf("%w: version '%s' in filename '%s' is not a positive number",
			ErrInvalidVersion, matches[1], filename)
	}
	return nil
}

// ParseMigrationFile turns a migration file into a forward step. A
// "-- Description:" header comment overrides the filename description.
func ParseMigrationFile(filename, content string) (Step, error) {
	if err := ValidateFileName(filename); err != nil {
		return Step{}, err
	}

	matches := migrationFilePattern.FindStringSubmatch(filename)
	version, _ := strconv.ParseInt(matches[1], 10, 64)

	if strings.TrimSpace(content) == "" {
		return Step{}, fmt.Errorf("%w: migration file is empty", ErrInvalidMigrationFile)
	}

	statements, err := scanStatements(content)
	if err != nil {
		return Step{}, err
	}
	if len(statements) == 0 {
		return Step{}, fmt.Errorf("%w: no SQL statements found after removing comments", ErrInvalidMigrationFile)
	}

	description := extractDescription(content)
	if description == "" {
		description = matches[2]
	}

	return Step{
		Version:     version,
		Description: description,
		Direction:   Forward,
		Statements:  statements,
	}, nil
}

// scanStatements splits SQL content into statements and catches unbalanced
// parentheses, unterminated quotes and comments before the file reaches the
// database. A semicolon ends a statement only outside quotes, comments and
// the BEGIN ... END body of a CREATE TRIGGER (CASE ... END nests inside it).
// Comments are dropped.
func scanStatements(sql string) ([]string, error) {
	var (
		statements []string
		current    strings.Builder
		quote      byte // closing quote character, 0 outside quotes
		parens     int
		blocks     int
		words      int  // words seen in the current statement
		create     bool // current statement starts with CREATE
		trigger    bool // current statement is CREATE ... TRIGGER
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
		words, create, trigger = 0, false, false
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]

		if quote != 0 {
			current.WriteByte(ch)
			if ch == quote {
				// Doubled quote characters are escapes.
				if quote != ']' && i+1 < len(sql) && sql[i+1] == quote {
					current.WriteByte(sql[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}

		switch {
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i+1 < len(sql) && sql[i+1] != '\n' {
				i++
			}
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			closing := strings.Index(sql[i+2:], "*/")
			if closing < 0 {
				return nil, fmt.Errorf("%w: unterminated block comment", ErrInvalidMigrationFile)
			}
			i += closing + 3
			current.WriteByte(' ')
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			current.WriteByte(ch)
		case ch == '[':
			quote = ']'
			current.WriteByte(ch)
		case ch == '(':
			parens++
			current.WriteByte(ch)
		case ch == ')':
			parens--
			if parens < 0 {
				return nil, fmt.Errorf("%w: unmatched closing parenthesis", ErrInvalidMigrationFile)
			}
			current.WriteByte(ch)
		case ch == ';':
			if blocks > 0 {
				current.WriteByte(ch)
				continue
			}
			flush()
		case isWordStart(ch):
			j := i + 1
			for j < len(sql) && isWordPart(sql[j]) {
				j++
			}
			word := strings.ToUpper(sql[i:j])
			current.WriteString(sql[i:j])
			i = j - 1

			words++
			switch {
			case words == 1 && word == "CREATE":
				create = true
			case create && word == "TRIGGER":
				trigger = true
			case trigger && word == "BEGIN":
				blocks++
			case blocks > 0 && word == "CASE":
				blocks++
			case blocks > 0 && word == "END":
				blocks--
			}
		default:
			current.WriteByte(ch)
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated string literal or quoted identifier", ErrInvalidMigrationFile)
	}
	if parens != 0 {
		return nil, fmt.Errorf("%w: unmatched opening parenthesis", ErrInvalidMigrationFile)
	}
	if blocks != 0 {
		return nil, fmt.Errorf("%w: trigger body is missing END", ErrInvalidMigrationFile)
	}
	flush()

	return statements, nil
}

func isWordStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isWordPart(ch byte) bool {
	return isWordStart(ch) || ch == '$' || (ch >= '0' && ch <= '9')
}

// extractDescription looks for a "-- Description:" line in the leading
// comment block.
func extractDescription(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return ""
}
