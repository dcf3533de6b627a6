package scene

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	apperrors "github.com/qverse/iotbridge/internal/errors"
	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
)

// Store 场景数据存储
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open 打开场景数据库并建表，path 为 ":memory:" 时使用内存库
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "open scene database")
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "ping scene database")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "create schema")
	}

	return &Store{
		db:  db,
		log: logger.WithModule("scene.store"),
	}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// Shutdown 优雅关闭钩子
func (s *Store) Shutdown(_ context.Context) error {
	return s.Close()
}

// ImportSceneDocument 导入场景文档
// 在事务内覆盖写：场景记录upsert，热点与2D物品整表替换。
func (s *Store) ImportSceneDocument(doc *models.SceneDocument) error {
	if doc == nil || doc.Scene.ID == "" {
		return apperrors.NewError(apperrors.ErrCodeBadRequest, "scene id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "begin import")
	}
	defer tx.Rollback()

	now := time.Now()
	createdAt := doc.Scene.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = tx.Exec(`
		INSERT INTO scenes (id, name, model_id, mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			model_id = excluded.model_id,
			mode = excluded.mode,
			updated_at = excluded.updated_at`,
		doc.Scene.ID, doc.Scene.Name, doc.Scene.ModelID, doc.Scene.Mode, createdAt, now)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "upsert scene")
	}

	if _, err := tx.Exec(`DELETE FROM tags WHERE scene_id = ?`, doc.Scene.ID); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "clear tags")
	}
	if _, err := tx.Exec(`DELETE FROM put2ds WHERE scene_id = ?`, doc.Scene.ID); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "clear put2ds")
	}

	for _, tag := range doc.Tags {
		if err := insertTag(tx, doc.Scene.ID, tag); err != nil {
			return err
		}
	}
	for _, put2d := range doc.Put2ds {
		if err := insertPut2d(tx, doc.Scene.ID, put2d); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "commit import")
	}
	s.log.Info("Scene imported", "scene_id", doc.Scene.ID, "tags", len(doc.Tags), "put2ds", len(doc.Put2ds))
	return nil
}

func insertTag(tx *sql.Tx, sceneID string, tag models.RawTag) error {
	position, err := json.Marshal(tag.Position)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "encode tag position")
	}
	rotation, err := json.Marshal(tag.Rotation)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "encode tag rotation")
	}
	content, err := json.Marshal(tag.Content)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "encode tag content")
	}

	_, err = tx.Exec(`
		INSERT INTO tags (id, uuid, scene_id, keyword, location_id, position, rotation, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tag.ID, tag.UUID, sceneID, tag.Keyword, tag.LocationID, string(position), string(rotation), string(content))
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, fmt.Sprintf("insert tag %s", tag.ID))
	}
	return nil
}

func insertPut2d(tx *sql.Tx, sceneID string, put2d models.RawPut2d) error {
	fields := map[string]interface{}{
		"position":             put2d.Position,
		"camera_position_3d":   put2d.CameraPosition3D,
		"quaternion":           put2d.Quaternion,
		"camera_quaternion_3d": put2d.CameraQuat3D,
		"scale":                put2d.Scale,
	}
	encoded := make(map[string]string, len(fields))
	for name, value := range fields {
		data, err := json.Marshal(value)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "encode put2d "+name)
		}
		encoded[name] = string(data)
	}

	_, err := tx.Exec(`
		INSERT INTO put2ds (id, scene_id, title, location_id, position, camera_position_3d,
			quaternion, camera_quaternion_3d, scale, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		put2d.ID, sceneID, put2d.Title, put2d.LocationID,
		encoded["position"], encoded["camera_position_3d"],
		encoded["quaternion"], encoded["camera_quaternion_3d"], encoded["scale"],
		put2d.Width, put2d.Height)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, fmt.Sprintf("insert put2d %s", put2d.ID))
	}
	return nil
}

// ListScenes 列出全部场景
func (s *Store) ListScenes() ([]models.Scene, error) {
	rows, err := s.db.Query(`SELECT id, name, model_id, mode, created_at, updated_at FROM scenes ORDER BY created_at`)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "list scenes")
	}
	defer rows.Close()

	scenes := make([]models.Scene, 0)
	for rows.Next() {
		var scene models.Scene
		if err := rows.Scan(&scene.ID, &scene.Name, &scene.ModelID, &scene.Mode, &scene.CreatedAt, &scene.UpdatedAt); err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "scan scene")
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// GetScene 按ID查询场景
func (s *Store) GetScene(id string) (*models.Scene, error) {
	var scene models.Scene
	err := s.db.QueryRow(`SELECT id, name, model_id, mode, created_at, updated_at FROM scenes WHERE id = ?`, id).
		Scan(&scene.ID, &scene.Name, &scene.ModelID, &scene.Mode, &scene.CreatedAt, &scene.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "get scene")
	}
	return &scene, nil
}

// DeleteScene 删除场景及其关联数据
func (s *Store) DeleteScene(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "begin delete")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tags WHERE scene_id = ?`, id); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "delete tags")
	}
	if _, err := tx.Exec(`DELETE FROM put2ds WHERE scene_id = ?`, id); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "delete put2ds")
	}
	result, err := tx.Exec(`DELETE FROM scenes WHERE id = ?`, id)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeStorageError, "delete scene")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return tx.Commit()
}

// GetHotspotTagSourceList 查询场景的热点原始数据
func (s *Store) GetHotspotTagSourceList(sceneID string) ([]models.RawTag, error) {
	rows, err := s.db.Query(`
		SELECT id, uuid, keyword, location_id, position, rotation, content
		FROM tags WHERE scene_id = ? ORDER BY id`, sceneID)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "list tags")
	}
	defer rows.Close()

	tags := make([]models.RawTag, 0)
	for rows.Next() {
		tag := models.RawTag{SceneID: sceneID}
		var position, rotation, content string
		if err := rows.Scan(&tag.ID, &tag.UUID, &tag.Keyword, &tag.LocationID, &position, &rotation, &content); err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "scan tag")
		}
		if err := decodeJSONColumns(
			jsonColumn{position, &tag.Position},
			jsonColumn{rotation, &tag.Rotation},
			jsonColumn{content, &tag.Content},
		); err != nil {
			s.log.Warn("Corrupt tag geometry, skipping decode", "tag_id", tag.ID, "error", err.Error())
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// GetPut2dContentSourceList 查询场景的2D物品原始数据
func (s *Store) GetPut2dContentSourceList(sceneID string) ([]models.RawPut2d, error) {
	rows, err := s.db.Query(`
		SELECT id, title, location_id, position, camera_position_3d,
			quaternion, camera_quaternion_3d, scale, width, height
		FROM put2ds WHERE scene_id = ? ORDER BY id`, sceneID)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "list put2ds")
	}
	defer rows.Close()

	put2ds := make([]models.RawPut2d, 0)
	for rows.Next() {
		put2d := models.RawPut2d{SceneID: sceneID}
		var position, cameraPosition, quaternion, cameraQuat, scale string
		if err := rows.Scan(&put2d.ID, &put2d.Title, &put2d.LocationID,
			&position, &cameraPosition, &quaternion, &cameraQuat, &scale,
			&put2d.Width, &put2d.Height); err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "scan put2d")
		}
		if err := decodeJSONColumns(
			jsonColumn{position, &put2d.Position},
			jsonColumn{cameraPosition, &put2d.CameraPosition3D},
			jsonColumn{quaternion, &put2d.Quaternion},
			jsonColumn{cameraQuat, &put2d.CameraQuat3D},
			jsonColumn{scale, &put2d.Scale},
		); err != nil {
			s.log.Warn("Corrupt put2d geometry, skipping decode", "put2d_id", put2d.ID, "error", err.Error())
		}
		put2ds = append(put2ds, put2d)
	}
	return put2ds, rows.Err()
}

type jsonColumn struct {
	data string
	dst  interface{}
}

func decodeJSONColumns(columns ...jsonColumn) error {
	for _, col := range columns {
		if col.data == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.data), col.dst); err != nil {
			return err
		}
	}
	return nil
}
