// Package dispatch implements the command dispatcher (C9): it maps a
// Command value plus a vault selector onto the vault core components
// (C1-C8), per §6.2/§2.
package dispatch

import (
	"fmt"
	"io"
	"os"

	"github.com/substantialcattle5/syv/internal/cryptopipe"
	"github.com/substantialcattle5/syv/internal/editor"
	"github.com/substantialcattle5/syv/internal/keydir"
	"github.com/substantialcattle5/syv/internal/partitionlc"
	"github.com/substantialcattle5/syv/internal/pgpprovider"
	"github.com/substantialcattle5/syv/internal/recipientlc"
	"github.com/substantialcattle5/syv/internal/recipients"
	"github.com/substantialcattle5/syv/internal/spec"
	"github.com/substantialcattle5/syv/internal/vaultconfig"
	"github.com/substantialcattle5/syv/internal/vaulterr"
)

// CreateMode selects whether ResourceEdit may synthesize a brand new
// target when nothing exists yet (§4.9 step 2).
type CreateMode int

const (
	RefuseCreate CreateMode = iota
	CreateIfMissing
)

// Command is the tagged union of every operation the dispatcher
// understands (§6.2). Each concrete type below implements it.
type Command interface{ isCommand() }

type InitCmd struct {
	Name       string
	Secrets    string
	Recipients string
	GPGKeys    string
	GPGKeyIDs  []string
	TrustModel string
	AutoImport *bool
}

type ListCmd struct{}

type ResourceAddCmd struct{ Specs []string }
type ResourceRemoveCmd struct{ Specs []string }
type ResourceShowCmd struct{ Spec string }
type ResourceEditCmd struct {
	Spec       string
	Editor     string
	Create     CreateMode
	TryEncrypt bool
}

type RecipientsInitCmd struct{ GPGKeyIDs []string }
type RecipientsListCmd struct{ Format string }
type RecipientsAddCmd struct {
	GPGKeyIDs    []string
	Sign         bool
	SigningKeyID string
	Partitions   []string
}
type RecipientsRemoveCmd struct {
	GPGKeyIDs  []string
	Partitions []string
}

type PartitionsAddCmd struct {
	Path           string
	Name           string
	GPGKeyIDs      []string
	RecipientsFile string
}
type PartitionsRemoveCmd struct{ Selector string }

func (InitCmd) isCommand()             {}
func (ListCmd) isCommand()             {}
func (ResourceAddCmd) isCommand()      {}
func (ResourceRemoveCmd) isCommand()   {}
func (ResourceShowCmd) isCommand()     {}
func (ResourceEditCmd) isCommand()     {}
func (RecipientsInitCmd) isCommand()   {}
func (RecipientsListCmd) isCommand()   {}
func (RecipientsAddCmd) isCommand()    {}
func (RecipientsRemoveCmd) isCommand() {}
func (PartitionsAddCmd) isCommand()    {}
func (PartitionsRemoveCmd) isCommand() {}

// Context is the single entry point: a path to the descriptor, a
// vault selector, and the command to run (§6.2).
type Context struct {
	DescriptorPath string
	Selector       string
	Command        Command

	Provider pgpprovider.Provider
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
	Quiet    bool
}

func (c *Context) provider() pgpprovider.Provider {
	if c.Provider != nil {
		return c.Provider
	}
	return pgpprovider.NewGPGProvider()
}

func (c *Context) stdin() io.Reader {
	if c.Stdin != nil {
		return c.Stdin
	}
	return os.Stdin
}

func (c *Context) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

// Dispatch loads the descriptor (except for Init, which creates one),
// selects the operational leader, and routes to the matching
// component. Errors are returned with a Decryption(NotForYou) hint
// attached when that kind appears anywhere in the cause chain (§7).
func Dispatch(ctx Context) (err error) {
	defer func() {
		if err != nil {
			err = attachHints(err)
		}
	}()

	if a, ok := ctx.provider().(interface{ Available() bool }); ok && !a.Available() {
		return vaulterr.New(vaulterr.ProviderUnsupported, "gpg binary not found or not runnable")
	}

	if initCmd, ok := ctx.Command.(InitCmd); ok {
		return runInit(ctx, initCmd)
	}

	leader, err := vaultconfig.Load(ctx.DescriptorPath)
	if err != nil {
		return err
	}
	if ctx.Selector != "" {
		leader, err = vaultconfig.Select(leader, ctx.Selector)
		if err != nil {
			return err
		}
	}

	switch cmd := ctx.Command.(type) {
	case ListCmd:
		return runList(ctx, leader)
	case ResourceAddCmd:
		return runResourceAdd(ctx, leader, cmd)
	case ResourceRemoveCmd:
		return runResourceRemove(ctx, leader, cmd)
	case ResourceShowCmd:
		return runResourceShow(ctx, leader, cmd)
	case ResourceEditCmd:
		return runResourceEdit(ctx, leader, cmd)
	case RecipientsInitCmd:
		return recipientlc.InitRecipients(ctx.provider(), leader, cmd.GPGKeyIDs, ctx.stdout())
	case RecipientsListCmd:
		format := cmd.Format
		if format == "" {
			format = "text"
		}
		return recipientlc.ListRecipients(ctx.provider(), leader, vaultconfig.AllInOrder(leader), format, ctx.stdout())
	case RecipientsAddCmd:
		return runRecipientsAdd(ctx, leader, cmd)
	case RecipientsRemoveCmd:
		return runRecipientsRemove(ctx, leader, cmd)
	case PartitionsAddCmd:
		_, err := partitionlc.AddPartition(ctx.provider(), leader, ctx.DescriptorPath, partitionlc.AddOptions{
			Path: cmd.Path, Name: cmd.Name, GPGKeyIDs: cmd.GPGKeyIDs, RecipientsFile: cmd.RecipientsFile,
		}, ctx.stdout())
		return err
	case PartitionsRemoveCmd:
		return partitionlc.RemovePartition(leader, ctx.DescriptorPath, cmd.Selector)
	default:
		return vaulterr.New(vaulterr.SpecInvalid, "unknown command %T", ctx.Command)
	}
}

func runInit(ctx Context, cmd InitCmd) error {
	leader := vaultconfig.NewLeader(cmd.Name, cmd.Secrets, cmd.GPGKeys, cmd.Recipients, cmd.TrustModel, cmd.AutoImport)

	if err := vaultconfig.ToFile(leader, ctx.DescriptorPath, vaultconfig.RefuseOverwrite); err != nil {
		return err
	}

	var fprs []string
	if len(cmd.GPGKeyIDs) > 0 {
		keys, err := ctx.provider().FindKeys(cmd.GPGKeyIDs)
		if err != nil {
			return err
		}
		if cmd.GPGKeys != "" {
			dir, dirErr := leader.GPGKeysDir(leader)
			if dirErr != nil {
				return dirErr
			}
			for _, key := range keys {
				fpr, path, expErr := keydir.ExportKey(ctx.provider(), dir, key)
				if expErr != nil {
					return expErr
				}
				fmt.Fprintf(ctx.stdout(), "Exported key %q to %q.\n", fpr, path)
			}
		}
		for _, key := range keys {
			fprs = append(fprs, ctx.provider().Fingerprint(key))
		}
	}
	if err := recipients.WriteAllowEmpty(leader.RecipientsFilePath(), fprs); err != nil {
		return err
	}

	fmt.Fprintf(ctx.stdout(), "Initialized vault at %q.\n", leader.URL())
	return nil
}

func runList(ctx Context, leader *vaultconfig.Vault) error {
	for _, v := range vaultconfig.AllInOrder(leader) {
		fmt.Fprintf(ctx.stdout(), "%s\n", v.URL())
	}
	return nil
}

func runResourceAdd(ctx Context, leader *vaultconfig.Vault, cmd ResourceAddCmd) error {
	specs, err := parseSpecs(cmd.Specs)
	if err != nil {
		return err
	}
	if err := checkDuplicateDestinations(leader, specs); err != nil {
		return err
	}
	for _, s := range specs {
		if f, ok := ctx.stdin().(*os.File); ok && s.SrcKind == spec.SourceStdin {
			if fi, statErr := f.Stat(); statErr == nil && fi.Mode()&os.ModeCharDevice != 0 {
				s.SrcKind = spec.SourceTerminalEditor
			}
		}
		plaintext, err := cryptopipe.OpenInput(s, ctx.stdin())
		if err != nil {
			return err
		}
		path, err := cryptopipe.EncryptResource(ctx.provider(), leader, s, plaintext, vaultconfig.RefuseOverwrite)
		if err != nil {
			return err
		}
		if !ctx.Quiet {
			fmt.Fprintf(ctx.stdout(), "Added %q.\n", path)
		}
	}
	return nil
}

func runResourceRemove(ctx Context, leader *vaultconfig.Vault, cmd ResourceRemoveCmd) error {
	specs, err := parseSpecs(cmd.Specs)
	if err != nil {
		return err
	}
	for _, s := range specs {
		partition, target, err := cryptopipe.RoutePartition(leader, s.Dst)
		if err != nil {
			return err
		}
		outPath, err := spec.GPGOutputFilename(target)
		if err != nil {
			return err
		}
		if err := os.Remove(outPath); err != nil {
			return vaulterr.Wrap(vaulterr.IOWrite, err, "could not remove %q", outPath)
		}
		if !ctx.Quiet {
			fmt.Fprintf(ctx.stdout(), "Removed %q from %q.\n", outPath, partition.DisplayName())
		}
	}
	return nil
}

func runResourceShow(ctx Context, leader *vaultconfig.Vault, cmd ResourceShowCmd) error {
	s, err := spec.Parse(cmd.Spec)
	if err != nil {
		return err
	}
	_, err = cryptopipe.DecryptResource(ctx.provider(), leader, s.Dst, ctx.stdout())
	return err
}

func runResourceEdit(ctx Context, leader *vaultconfig.Vault, cmd ResourceEditCmd) error {
	s, err := spec.Parse(cmd.Spec)
	if err != nil {
		return err
	}
	partition, target, err := cryptopipe.RoutePartition(leader, s.Dst)
	if err != nil {
		return err
	}
	outPath, err := spec.GPGOutputFilename(target)
	if err != nil {
		return err
	}

	var buf []byte
	existing, err := os.ReadFile(outPath)
	switch {
	case err == nil:
		buf, err = ctx.provider().Decrypt(existing)
		if err != nil {
			return err
		}
	case os.IsNotExist(err) && cmd.Create == CreateIfMissing:
		buf = nil
	default:
		return vaulterr.Wrap(vaulterr.IORead, err, "could not read %q", outPath)
	}

	if cmd.TryEncrypt {
		if err := cryptopipe.EncryptEmptyProbe(ctx.provider(), leader, partition); err != nil {
			return vaulterr.Wrap(vaulterr.EncryptionOther, err, "refusing to open the editor: a probe encryption for %q failed", partition.DisplayName())
		}
	}

	editorCmd := cmd.Editor
	if editorCmd == "" {
		editorCmd = os.Getenv("EDITOR")
	}
	edited, err := editor.Edit(editorCmd, buf)
	if err != nil {
		return err
	}

	_, err = cryptopipe.EncryptResource(ctx.provider(), leader, s, edited, vaultconfig.AllowOverwrite)
	if err != nil {
		return err
	}
	if !ctx.Quiet {
		fmt.Fprintf(ctx.stdout(), "Edited %q.\n", outPath)
	}
	return nil
}

func runRecipientsAdd(ctx Context, leader *vaultconfig.Vault, cmd RecipientsAddCmd) error {
	partitions, err := resolvePartitions(leader, cmd.Partitions)
	if err != nil {
		return err
	}
	signing := recipientlc.SigningNone
	if cmd.Sign {
		signing = recipientlc.SigningPublic
	}
	return recipientlc.AddRecipients(ctx.provider(), leader, partitions, recipientlc.AddOptions{
		IDs: cmd.GPGKeyIDs, Signing: signing, SigningKeyID: cmd.SigningKeyID,
	}, ctx.stdout(), ctx.Quiet)
}

func runRecipientsRemove(ctx Context, leader *vaultconfig.Vault, cmd RecipientsRemoveCmd) error {
	partitions, err := resolvePartitions(leader, cmd.Partitions)
	if err != nil {
		return err
	}
	return recipientlc.RemoveRecipients(ctx.provider(), leader, partitions, cmd.GPGKeyIDs, ctx.stdout(), ctx.Quiet)
}

// resolvePartitions resolves explicit partition selectors without
// promoting any of them, defaulting to just the operational leader
// when none were given.
func resolvePartitions(leader *vaultconfig.Vault, selectors []string) ([]*vaultconfig.Vault, error) {
	if len(selectors) == 0 {
		return []*vaultconfig.Vault{leader}, nil
	}
	out := make([]*vaultconfig.Vault, 0, len(selectors))
	for _, sel := range selectors {
		v, err := vaultconfig.Find(leader, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseSpecs(raw []string) ([]spec.Spec, error) {
	out := make([]spec.Spec, 0, len(raw))
	for _, r := range raw {
		s, err := spec.Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// checkDuplicateDestinations refuses two specs that would write to
// the same absolute path under RefuseOverwrite (§4.6 "Cross-spec
// rule").
func checkDuplicateDestinations(leader *vaultconfig.Vault, specs []spec.Spec) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		_, target, err := cryptopipe.RoutePartition(leader, s.Dst)
		if err != nil {
			return err
		}
		outPath, err := spec.GPGOutputFilename(target)
		if err != nil {
			return err
		}
		if seen[outPath] {
			return vaulterr.New(vaulterr.ConfigExists, "more than one spec would write to %q", outPath)
		}
		seen[outPath] = true
	}
	return nil
}

// attachHints prepends the "ask a recipient to add you" remediation
// when a Decryption(NotForYou) error appears anywhere in err's chain
// (§7).
func attachHints(err error) error {
	if vaulterr.Is(err, vaulterr.DecryptionNotForYou) {
		return fmt.Errorf("hint: ask an existing recipient to run `recipients add` for your key\n%w", err)
	}
	if vaulterr.Is(err, vaulterr.ProviderUnsupported) {
		return fmt.Errorf("hint: install GnuPG and ensure `gpg` is on your PATH\n%w", err)
	}
	return err
}
