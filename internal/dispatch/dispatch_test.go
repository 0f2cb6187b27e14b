package dispatch

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/substantialcattle5/syv/internal/pgpprovider/pgptest"
	"github.com/substantialcattle5/syv/testutil"
)

const (
	aliceFpr = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	bobFpr   = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func newCtx(t *testing.T, provider *pgptest.Provider) (Context, string) {
	t.Helper()
	dir := testutil.TempDir(t, "dispatch")
	descriptor := filepath.Join(dir, "syv.yml")
	var out, errOut bytes.Buffer
	return Context{
		DescriptorPath: descriptor,
		Provider:       provider,
		Stdin:          strings.NewReader(""),
		Stdout:         &out,
		Stderr:         &errOut,
		Quiet:          true,
	}, dir
}

func initVault(t *testing.T, ctx Context, gpgKeyIDs []string) {
	t.Helper()
	err := Dispatch(Context{
		DescriptorPath: ctx.DescriptorPath,
		Provider:       ctx.Provider,
		Stdout:         ctx.Stdout,
		Stderr:         ctx.Stderr,
		Quiet:          true,
		Command: InitCmd{
			Name:      "test-vault",
			Secrets:   ".",
			GPGKeys:   ".gpg-keys",
			GPGKeyIDs: gpgKeyIDs,
		},
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
}

func TestDispatchInitWritesDescriptorAndKeys(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	ctx, dir := newCtx(t, provider)

	initVault(t, ctx, []string{aliceFpr})

	testutil.AssertFileExists(t, filepath.Join(dir, "syv.yml"))
	testutil.AssertFileExists(t, filepath.Join(dir, ".gpg-id"))
	testutil.AssertFileExists(t, filepath.Join(dir, ".gpg-keys", aliceFpr))
}

func TestDispatchAddShowRoundTrip(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	ctx, _ := newCtx(t, provider)
	initVault(t, ctx, []string{aliceFpr})

	addCtx := ctx
	addCtx.Stdin = strings.NewReader("hello")
	addCtx.Command = ResourceAddCmd{Specs: []string{":secret/one"}}
	if err := Dispatch(addCtx); err != nil {
		t.Fatalf("add: %v", err)
	}

	var out bytes.Buffer
	showCtx := ctx
	showCtx.Stdout = &out
	showCtx.Command = ResourceShowCmd{Spec: "secret/one"}
	if err := Dispatch(showCtx); err != nil {
		t.Fatalf("show: %v", err)
	}
	if out.String() != "hello" {
		t.Fatalf("expected %q, got %q", "hello", out.String())
	}
}

func TestDispatchShowAttachesHintOnDecryptionFailure(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	ctx, _ := newCtx(t, provider)
	initVault(t, ctx, []string{aliceFpr})

	addCtx := ctx
	addCtx.Stdin = strings.NewReader("hello")
	addCtx.Command = ResourceAddCmd{Specs: []string{":secret/one"}}
	if err := Dispatch(addCtx); err != nil {
		t.Fatalf("add: %v", err)
	}

	// A provider with no matching secret key models a non-recipient
	// trying to decrypt.
	strangerProvider := pgptest.New()
	strangerCtx := ctx
	strangerCtx.Provider = strangerProvider
	strangerCtx.Command = ResourceShowCmd{Spec: "secret/one"}
	err := Dispatch(strangerCtx)
	if err == nil {
		t.Fatal("expected a decryption error for a non-recipient")
	}
	if !strings.Contains(err.Error(), "ask an existing recipient") {
		t.Fatalf("expected hint text in error, got %q", err.Error())
	}
}

func TestDispatchResourceRemove(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	ctx, dir := newCtx(t, provider)
	initVault(t, ctx, []string{aliceFpr})

	addCtx := ctx
	addCtx.Stdin = strings.NewReader("hello")
	addCtx.Command = ResourceAddCmd{Specs: []string{":secret/one"}}
	if err := Dispatch(addCtx); err != nil {
		t.Fatalf("add: %v", err)
	}

	rmCtx := ctx
	rmCtx.Command = ResourceRemoveCmd{Specs: []string{":secret/one"}}
	if err := Dispatch(rmCtx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	testutil.AssertFileNotExists(t, filepath.Join(dir, "secret", "one.gpg"))
}

func TestDispatchRecipientsAddAndRemove(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	provider.AddKey(bobFpr, []string{"bob"}, true)
	ctx, dir := newCtx(t, provider)
	initVault(t, ctx, []string{aliceFpr})

	addRecCtx := ctx
	addRecCtx.Command = RecipientsAddCmd{GPGKeyIDs: []string{bobFpr}}
	if err := Dispatch(addRecCtx); err != nil {
		t.Fatalf("recipients add: %v", err)
	}
	testutil.AssertFileContains(t, filepath.Join(dir, ".gpg-id"), bobFpr)

	rmRecCtx := ctx
	rmRecCtx.Command = RecipientsRemoveCmd{GPGKeyIDs: []string{bobFpr}}
	if err := Dispatch(rmRecCtx); err != nil {
		t.Fatalf("recipients remove: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, ".gpg-id"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(content), bobFpr) {
		t.Fatalf("expected bob to be removed, got %q", content)
	}
}

func TestDispatchPartitionsAddAndList(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(aliceFpr, []string{"alice"}, true)
	provider.AddKey(bobFpr, []string{"bob"}, true)
	ctx, _ := newCtx(t, provider)
	initVault(t, ctx, []string{aliceFpr})

	addPartCtx := ctx
	addPartCtx.Command = PartitionsAddCmd{Path: "restricted", Name: "restricted-cache", GPGKeyIDs: []string{bobFpr}}
	if err := Dispatch(addPartCtx); err != nil {
		t.Fatalf("partitions add: %v", err)
	}

	var out bytes.Buffer
	listCtx := ctx
	listCtx.Stdout = &out
	listCtx.Command = ListCmd{}
	if err := Dispatch(listCtx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "restricted-cache") {
		t.Fatalf("expected list output to mention the partition, got %q", out.String())
	}
}

func TestDispatchInitRefusesExistingDescriptor(t *testing.T) {
	provider := pgptest.New()
	ctx, _ := newCtx(t, provider)
	initVault(t, ctx, nil)

	err := Dispatch(Context{
		DescriptorPath: ctx.DescriptorPath,
		Provider:       provider,
		Stdout:         &bytes.Buffer{},
		Command:        InitCmd{Name: "test-vault"},
	})
	if err == nil {
		t.Fatal("expected an error re-initializing an existing descriptor")
	}
}
