package partitionlc

import (
	"bytes"
	"testing"

	"github.com/substantialcattle5/syv/internal/pgpprovider/pgptest"
	"github.com/substantialcattle5/syv/internal/recipients"
	"github.com/substantialcattle5/syv/internal/vaultconfig"
	"github.com/substantialcattle5/syv/testutil"
)

const bobFpr = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"

func newLeader(t *testing.T) (*vaultconfig.Vault, string) {
	t.Helper()
	dir := testutil.TempDir(t, "partitionlc")
	leader := testutil.CreateTestLeader(t, dir, "vault")
	if err := vaultconfig.ToFile(leader, leader.AbsolutePath("syv.yml"), vaultconfig.RefuseOverwrite); err != nil {
		t.Fatalf("ToFile: %v", err)
	}
	return leader, leader.AbsolutePath("syv.yml")
}

func TestAddPartitionRequiresPath(t *testing.T) {
	provider := pgptest.New()
	leader, descriptorPath := newLeader(t)

	_, err := AddPartition(provider, leader, descriptorPath, AddOptions{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected an error for a missing path")
	}
}

func TestAddPartitionSeedsRecipientsAndDirectory(t *testing.T) {
	provider := pgptest.New()
	provider.AddKey(bobFpr, []string{"bob"}, true)
	leader, descriptorPath := newLeader(t)

	partition, err := AddPartition(provider, leader, descriptorPath, AddOptions{
		Path:      "restricted",
		Name:      "restricted-cache",
		GPGKeyIDs: []string{bobFpr},
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("AddPartition: %v", err)
	}

	if partition.Index != 1 {
		t.Fatalf("expected partition index 1, got %d", partition.Index)
	}
	testutil.AssertDirExists(t, partition.SecretsPath())

	fprs, err := recipients.Read(partition.RecipientsFilePath())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !recipients.Contains(fprs, bobFpr) {
		t.Fatalf("expected partition recipients to contain bob, got %v", fprs)
	}

	if len(leader.Partitions) != 1 || leader.Partitions[0] != partition {
		t.Fatalf("expected the partition to be attached to the leader")
	}
}

func TestAddPartitionAssignsIncreasingIndices(t *testing.T) {
	provider := pgptest.New()
	leader, descriptorPath := newLeader(t)

	p1, err := AddPartition(provider, leader, descriptorPath, AddOptions{Path: "a"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("AddPartition a: %v", err)
	}
	p2, err := AddPartition(provider, leader, descriptorPath, AddOptions{Path: "b"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("AddPartition b: %v", err)
	}
	if p1.Index != 1 || p2.Index != 2 {
		t.Fatalf("expected sequential indices 1,2, got %d,%d", p1.Index, p2.Index)
	}
}

func TestRemovePartitionSplicesDescriptor(t *testing.T) {
	provider := pgptest.New()
	leader, descriptorPath := newLeader(t)

	_, err := AddPartition(provider, leader, descriptorPath, AddOptions{Path: "restricted", Name: "restricted-cache"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("AddPartition: %v", err)
	}

	if err := RemovePartition(leader, descriptorPath, "restricted-cache"); err != nil {
		t.Fatalf("RemovePartition: %v", err)
	}

	reloaded, err := vaultconfig.Load(descriptorPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reloaded.Partitions) != 0 {
		t.Fatalf("expected the partition to be removed from the descriptor, got %d remaining", len(reloaded.Partitions))
	}
}

func TestRemovePartitionRefusesTheLeader(t *testing.T) {
	leader, descriptorPath := newLeader(t)

	err := RemovePartition(leader, descriptorPath, leader.Name)
	if err == nil {
		t.Fatal("expected an error removing the leader as a partition")
	}
}
