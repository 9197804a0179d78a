package vector

import (
	"context"

	pkgerrors "doc-platform/pkg/errors"
)

// EnsureIndex 若索引不存在则创建，存在则跳过。嵌入处理器在首次写入前调用。
func EnsureIndex(ctx context.Context, s Store, name string, dimension int, distance string) error {
	if distance == "" {
		distance = "cosine"
	}
	list, err := s.ListIndexes(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "列出索引失败")
	}
	for _, n := range list {
		if n == name {
			return nil
		}
	}
	return s.Create(ctx, &Index{
		Name:      name,
		Dimension: dimension,
		Distance:  distance,
	})
}
