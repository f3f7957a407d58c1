package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	usersFile        = "users.json"
	transactionsFile = "transactions.json"
)

// WriteDataset serializes the dataset into users.json and transactions.json under the provided directory.
func WriteDataset(dataset Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, usersFile), dataset.Users); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, transactionsFile), dataset.Transactions)
}

// ReadDataset loads a dataset written by WriteDataset. Either path may point
// at a file outside dir; empty paths resolve to the default names under dir.
func ReadDataset(dir, usersPath, transactionsPath string) (Dataset, error) {
	if usersPath == "" {
		usersPath = filepath.Join(dir, usersFile)
	}
	if transactionsPath == "" {
		transactionsPath = filepath.Join(dir, transactionsFile)
	}

	var ds Dataset
	if err := readJSON(usersPath, &ds.Users); err != nil {
		return Dataset{}, err
	}
	if err := readJSON(transactionsPath, &ds.Transactions); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

func writeJSON(path string, data any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode json for %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, target any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
