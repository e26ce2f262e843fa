package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/alecthomas/kong"
	"github.com/samber/lo"

	"github.com/vburojevic/opctl/internal/config"
)

// CompletionCmd prints a shell completion script
type CompletionCmd struct {
	Shell string `arg:"" enum:"bash,zsh,fish" help:"Shell type (bash, zsh, fish)"`
}

// completionFlag is one flag as the shell should offer it.
type completionFlag struct {
	Long   string
	Short  string
	Values []string
	File   bool
	Ext    []string // accepted file extensions; empty means any file
}

func (f completionFlag) tokens() []string {
	if f.Short == "" {
		return []string{"--" + f.Long}
	}
	return []string{"--" + f.Long, "-" + f.Short}
}

// completionCommand is a command path such as "config generate".
type completionCommand struct {
	Path        string
	Subcommands []string
	Args        []string
	Flags       []completionFlag
}

// completionModel is everything a script needs, computed once in Go so the
// shells only do lookups.
type completionModel struct {
	Commands []completionCommand
}

// Per-flag values kong cannot infer from tags, keyed by "<path> --<flag>".
// An empty path applies everywhere.
func completionValues() map[string][]string {
	return map[string][]string{
		"schema --type": lo.Keys(schemas()),
	}
}

// Flags that name files, keyed like completionValues.
var completionFiles = map[string][]string{
	" --config":       {"yaml", "yml"},
	"attach --output": nil,
}

// Run executes the completion command.
func (c *CompletionCmd) Run(globals *Globals, ctx *kong.Context) error {
	var root *kong.Node
	if ctx != nil && ctx.Kong != nil && ctx.Model != nil {
		root = ctx.Model.Node
	}
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}
	model := buildCompletionModel(root, cfg)

	var tmpl *template.Template
	switch c.Shell {
	case "bash":
		tmpl = bashCompletion
	case "zsh":
		tmpl = zshCompletion
	case "fish":
		tmpl = fishCompletion
	default:
		return fmt.Errorf("unsupported shell: %s", c.Shell)
	}
	return tmpl.Execute(globals.Stdout, model)
}

func buildCompletionModel(root *kong.Node, cfg *config.Config) completionModel {
	var model completionModel
	if root == nil {
		return model
	}

	values := completionValues()
	var walk func(n *kong.Node, path string)
	walk = func(n *kong.Node, path string) {
		cmd := completionCommand{Path: path}

		children := lo.Filter(n.Children, func(child *kong.Node, _ int) bool {
			return child != nil && child.Type == kong.CommandNode && !child.Hidden
		})
		for _, child := range children {
			cmd.Subcommands = append(cmd.Subcommands, child.Name)
			cmd.Subcommands = append(cmd.Subcommands, child.Aliases...)
		}
		sort.Strings(cmd.Subcommands)

		for _, arg := range n.Positional {
			cmd.Args = append(cmd.Args, splitValues(arg.Enum, ",")...)
		}
		if path == "attach" {
			cmd.Args = append(cmd.Args, localAddress(cfg.Listen))
		}

		for _, group := range n.AllFlags(true) {
			for _, f := range group {
				if f == nil || f.Hidden {
					continue
				}
				cmd.Flags = append(cmd.Flags, describeFlag(f, path, values))
			}
		}
		sort.Slice(cmd.Flags, func(i, j int) bool { return cmd.Flags[i].Long < cmd.Flags[j].Long })

		model.Commands = append(model.Commands, cmd)
		for _, child := range children {
			walk(child, strings.TrimSpace(path+" "+child.Name))
		}
	}
	walk(root, "")
	return model
}

func describeFlag(f *kong.Flag, path string, values map[string][]string) completionFlag {
	out := completionFlag{Long: f.Name}
	if f.Short != 0 {
		out.Short = string(f.Short)
	}

	out.Values = splitValues(f.Enum, ",")
	if len(out.Values) == 0 {
		out.Values = splitValues(f.PlaceHolder, "|")
	}
	for _, key := range []string{path + " --" + f.Name, " --" + f.Name} {
		if v, ok := values[key]; ok {
			out.Values = v
		}
		if ext, ok := completionFiles[key]; ok {
			out.File, out.Ext = true, ext
		}
	}
	if f.Tag != nil && (f.Tag.Type == "existingfile" || f.Tag.Type == "path") {
		out.File = true
	}
	sort.Strings(out.Values)
	return out
}

// splitValues returns the alternatives in s, or nil when s has no separator.
func splitValues(s, sep string) []string {
	if !strings.Contains(s, sep) {
		return nil
	}
	return lo.Compact(lo.Map(strings.Split(s, sep), func(v string, _ int) string {
		return strings.TrimSpace(v)
	}))
}

var completionFuncs = template.FuncMap{
	"join": func(words []string) string { return strings.Join(words, " ") },
	"words": func(cmd completionCommand) string {
		return strings.Join(append(append([]string(nil), cmd.Subcommands...), cmd.Args...), " ")
	},
	"flagWords": func(flags []completionFlag) string {
		return strings.Join(lo.FlatMap(flags, func(f completionFlag, _ int) []string { return f.tokens() }), " ")
	},
	"casePattern": func(path string, f completionFlag) string {
		return strings.Join(lo.Map(f.tokens(), func(t string, _ int) string {
			return fmt.Sprintf("%q", path+"|"+t)
		}), "|")
	},
	"needsValue": func(f completionFlag) bool { return f.File || len(f.Values) > 0 },
}

const bashBody = `_opctl() {
    local cur prev
    if declare -F _get_comp_words_by_ref >/dev/null; then
        _get_comp_words_by_ref -n : cur prev
    else
        cur="${COMP_WORDS[COMP_CWORD]}"
        prev="${COMP_WORDS[COMP_CWORD-1]}"
    fi

    local path="" next i
    for ((i=1; i < COMP_CWORD; i++)); do
        [[ "${COMP_WORDS[i]}" == -* ]] && continue
        next="${path:+${path} }${COMP_WORDS[i]}"
        case "${next}" in
{{- range .Commands}}{{if .Path}}
            "{{.Path}}") path="${next}" ;;
{{- end}}{{end}}
            *) break ;;
        esac
    done

    case "${path}|${prev}" in
{{- range $cmd := .Commands}}{{range .Flags}}{{if needsValue .}}
        {{casePattern $cmd.Path .}})
{{- if .Values}}
            COMPREPLY=($(compgen -W "{{join .Values}}" -- "${cur}"))
{{- else if .Ext}}
            COMPREPLY=(
{{- range $i, $ext := .Ext}}{{if $i}} {{end}}$(compgen {{if not $i}}-o plusdirs {{end}}-f -X '!*.{{$ext}}' -- "${cur}"){{end -}}
            )
{{- else}}
            COMPREPLY=($(compgen -f -- "${cur}"))
{{- end}}
            return
            ;;
{{- end}}{{end}}{{end}}
    esac

    local words="" flags=""
    case "${path}" in
{{- range .Commands}}
        "{{.Path}}")
            words="{{words .}}"
            flags="{{flagWords .Flags}}"
            ;;
{{- end}}
    esac

    if [[ "${cur}" == -* ]]; then
        COMPREPLY=($(compgen -W "${flags}" -- "${cur}"))
    else
        COMPREPLY=($(compgen -W "${words}" -- "${cur}"))
    fi
    if declare -F __ltrim_colon_completions >/dev/null; then
        __ltrim_colon_completions "${cur}"
    fi
}

complete -F _opctl opctl
`

var (
	bashCompletion = template.Must(template.New("bash").Funcs(completionFuncs).Parse(`# opctl bash completion
# Add to ~/.bashrc:
#   eval "$(opctl completion bash)"

` + bashBody))

	zshCompletion = template.Must(template.New("zsh").Funcs(completionFuncs).Parse(`#compdef opctl
# opctl zsh completion
# Add to ~/.zshrc:
#   eval "$(opctl completion zsh)"

autoload -U +X bashcompinit && bashcompinit

` + bashBody))

	fishCompletion = template.Must(template.New("fish").Funcs(completionFuncs).Parse(`# opctl fish completion
#   opctl completion fish > ~/.config/fish/completions/opctl.fish

complete -c opctl -f

function __opctl_path
    set -l path
    for w in (commandline -opc)[2..-1]
        string match -q -- '-*' $w; and continue
        set -l next (string join ' ' $path $w)
        contains -- "$next"{{range .Commands}}{{if .Path}} '{{.Path}}'{{end}}{{end}}; or break
        set path $path $w
    end
    string join ' ' $path
end

function __opctl_at
    set -l path (__opctl_path)
    test "$path" = "$argv[1]"
end
{{range $cmd := .Commands}}
{{- range .Subcommands}}
complete -c opctl -n '__opctl_at "{{$cmd.Path}}"' -a '{{.}}'
{{- end}}
{{- range .Args}}
complete -c opctl -n '__opctl_at "{{$cmd.Path}}"' -a '{{.}}'
{{- end}}
{{- range .Flags}}
complete -c opctl -n '__opctl_at "{{$cmd.Path}}"' -l {{.Long}}{{if .Short}} -s {{.Short}}{{end}}
{{- if .Values}} -xa '{{join .Values}}'{{else if .File}} -rF{{end}}
{{- end}}
{{- end}}
`))
)
