package export

// FileNames are the artifact names of one period's export.
type FileNames struct {
	DataCSV string
	KeyCSV  string
	DataZip string
	KeyZip  string
}

// Names returns the artifact names for periodID, e.g. CASI_2025-Q2_data.csv.
func Names(prefix, periodID string) FileNames {
	base := prefix + "_" + periodID
	return FileNames{
		DataCSV: base + "_data.csv",
		KeyCSV:  base + "_key.csv",
		DataZip: base + "_data.zip",
		KeyZip:  base + "_key.zip",
	}
}
