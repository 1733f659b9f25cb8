package storage

// ProcessedStore — интерфейс для загрузки/сохранения смещений обработанных SQL-файлов.
// Смещение указывает на границу последнего выполненного оператора.
type ProcessedStore interface {
	Load() (map[string]int64, error)
	Save(data map[string]int64) error
}
