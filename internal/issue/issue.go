// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ModuleNotFoundId Id = iota + 1
	PackageNotFoundId
	NoMatchingVersionId
	InvalidRangeId
	TranslationFailedId
	DeclarationFailedId
	ExecutionFailedId
	LoadTimeoutId
	ModuleBusyId
	AliasCycleId
	ConfigLoadFailedId
	WatchFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // never empty
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range append(slices.Clone(i.docLinks), i.extLinks...) {
			md.WriteString("\n- <" + string(link) + ">")
		}
	}
	return render(md.String(), stylePath)
}

const docsBase = "https://github.com/invowk/livemod/blob/main/docs/"

var (
	render = glamour.Render

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found!

The specifier resolved to a module id, but no source exists at that location.

## Things you can try:
- Check how the specifier resolves:
~~~
$ livemod resolve ./lib --from /pkgs/app/1.0.0/index.cue
~~~

- Ids without an extension are tried with each configured extension
  (` + "`modules.extensions`" + `, default ` + "`.cue`, `.sh`" + `)
- Relative specifiers are joined with the directory of the importing module`,
		docLinks: []HttpLink{docsBase + "resolution.md"},
	}

	packageNotFoundIssue = &Issue{
		id: PackageNotFoundId,
		mdMsg: `
# Package not found!

A bare specifier names a package that is not registered.

## Things you can try:
- List the registered packages:
~~~
$ livemod packages
~~~

- Add the directory holding the package to ` + "`roots.packages`" + ` or
  ` + "`roots.collections`" + ` in your configuration
- Collections are laid out as ` + "`<collection>/<name>/<version>/`",
		docLinks: []HttpLink{docsBase + "packages.md"},
	}

	noMatchingVersionIssue = &Issue{
		id: NoMatchingVersionId,
		mdMsg: `
# No version satisfies the range!

The package is registered, but none of its versions matches the requested
range.

## Things you can try:
- Show the available versions:
~~~
$ livemod packages --format yaml
~~~

- Relax the range in the importing package's ` + "`dependencies`" + `
- Pre-release versions only match ranges that name the same
  ` + "`major.minor.patch`" + ` with a pre-release tag`,
		docLinks: []HttpLink{docsBase + "packages.md"},
		extLinks: []HttpLink{"https://semver.org"},
	}

	invalidRangeIssue = &Issue{
		id: InvalidRangeId,
		mdMsg: `
# Invalid version range!

A specifier such as ` + "`lib@^1.2`" + ` carries a range that cannot be parsed.

## Accepted forms:
- Primitive comparators: ` + "`>=1.2.0 <2.0.0`" + `
- Caret and tilde: ` + "`^1.2.3`, `~1.2`" + `
- X-ranges: ` + "`1.x`, `*`" + `
- Hyphen ranges: ` + "`1.2.0 - 1.4.0`" + `
- Alternatives joined with ` + "`||`",
		docLinks: []HttpLink{docsBase + "packages.md"},
		extLinks: []HttpLink{"https://semver.org"},
	}

	translationFailedIssue = &Issue{
		id: TranslationFailedId,
		mdMsg: `
# The module source could not be translated!

The header or body of the module failed to parse. The module was left
untouched: its previous source, exports and wiring are still live.

## Things you can try:
- Header lines look like:
~~~
import { a, b as c } from "./lib"
export { version } from "meta"
~~~

- Imported names must be plain identifiers (letters, digits, underscores)`,
		docLinks: []HttpLink{docsBase + "modules.md"},
	}

	declarationFailedIssue = &Issue{
		id: DeclarationFailedId,
		mdMsg: `
# The module declaration is invalid!

The transformer produced a declaration whose setters do not line up with
its dependencies, or without an execute step.`,
		docLinks: []HttpLink{docsBase + "modules.md"},
	}

	executionFailedIssue = &Issue{
		id: ExecutionFailedId,
		mdMsg: `
# The module body failed to run!

Dependencies were resolved and wired, but evaluating the body failed.
On a reload the new wiring stays in place; fix the body and save again.

## Things you can try:
- Run the module on its own to see the full error:
~~~
$ livemod load /pkgs/app/1.0.0/index.cue --verbose
~~~`,
		docLinks: []HttpLink{docsBase + "modules.md"},
	}

	loadTimeoutIssue = &Issue{
		id: LoadTimeoutId,
		mdMsg: `
# Loading took too long!

A module did not finish loading within the configured timeout.

## Things you can try:
- Raise ` + "`modules.load_timeout`" + ` in your configuration
- Check for script modules that wait on input or the network`,
		docLinks: []HttpLink{docsBase + "configuration.md"},
	}

	moduleBusyIssue = &Issue{
		id: ModuleBusyId,
		mdMsg: `
# The module is busy!

A source change arrived while the module was still going through the
reload protocol. Wait for the current reload to finish and try again.`,
		docLinks: []HttpLink{docsBase + "modules.md"},
	}

	aliasCycleIssue = &Issue{
		id: AliasCycleId,
		mdMsg: `
# Package aliases form a cycle!

A package's ` + "`livemod.packageMap`" + ` points back to a package that is
already being registered. The repeated alias was skipped.

## Things you can try:
- Remove the alias that points back up the chain`,
		docLinks: []HttpLink{docsBase + "packages.md"},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file exists but does not match the schema.

## Things you can try:
- Show the effective configuration:
~~~
$ livemod config show
~~~

- Write a fresh default file:
~~~
$ livemod config init
~~~`,
		docLinks: []HttpLink{docsBase + "configuration.md"},
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	watchFailedIssue = &Issue{
		id: WatchFailedId,
		mdMsg: `
# File watching failed!

The watcher could not subscribe to one of the package roots.

## Things you can try:
- Check that every configured root exists and is readable
- On Linux, raise ` + "`fs.inotify.max_user_watches`",
		docLinks: []HttpLink{docsBase + "watch.md"},
		extLinks: []HttpLink{"https://github.com/fsnotify/fsnotify"},
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

A module source could not be read or persisted.

## Things you can try:
- Check the permissions of the package directory
- Run ` + "`livemod load`" + ` without ` + "`--persist`" + ` to keep changes in memory`,
		docLinks: []HttpLink{docsBase + "modules.md"},
	}

	issues = map[Id]*Issue{
		moduleNotFoundIssue.Id():    moduleNotFoundIssue,
		packageNotFoundIssue.Id():   packageNotFoundIssue,
		noMatchingVersionIssue.Id(): noMatchingVersionIssue,
		invalidRangeIssue.Id():      invalidRangeIssue,
		translationFailedIssue.Id(): translationFailedIssue,
		declarationFailedIssue.Id(): declarationFailedIssue,
		executionFailedIssue.Id():   executionFailedIssue,
		loadTimeoutIssue.Id():       loadTimeoutIssue,
		moduleBusyIssue.Id():        moduleBusyIssue,
		aliasCycleIssue.Id():        aliasCycleIssue,
		configLoadFailedIssue.Id():  configLoadFailedIssue,
		watchFailedIssue.Id():       watchFailedIssue,
		permissionDeniedIssue.Id():  permissionDeniedIssue,
	}
)

// Values returns every issue ordered by id.
func Values() []*Issue {
	ids := maps.Keys(issues)
	slices.Sort(ids)
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
