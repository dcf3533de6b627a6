package scene

// 建表语句。几何与内容字段以JSON文本存储，读取时还原。
const schemaSQL = `
CREATE TABLE IF NOT EXISTS scenes (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	model_id   TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

-- 编辑器产出的热点ID只在场景内唯一，主键带上scene_id
CREATE TABLE IF NOT EXISTS tags (
	id          TEXT NOT NULL,
	uuid        TEXT NOT NULL DEFAULT '',
	scene_id    TEXT NOT NULL,
	keyword     TEXT NOT NULL DEFAULT '',
	location_id TEXT NOT NULL DEFAULT '',
	position    TEXT NOT NULL DEFAULT '{}',
	rotation    TEXT NOT NULL DEFAULT '{}',
	content     TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (scene_id, id),
	FOREIGN KEY (scene_id) REFERENCES scenes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tags_scene ON tags(scene_id);

CREATE TABLE IF NOT EXISTS put2ds (
	id                   TEXT NOT NULL,
	scene_id             TEXT NOT NULL,
	title                TEXT NOT NULL DEFAULT '',
	location_id          TEXT NOT NULL DEFAULT '',
	position             TEXT NOT NULL DEFAULT '{}',
	camera_position_3d   TEXT NOT NULL DEFAULT '{}',
	quaternion           TEXT NOT NULL DEFAULT '{}',
	camera_quaternion_3d TEXT NOT NULL DEFAULT '{}',
	scale                TEXT NOT NULL DEFAULT '{}',
	width                REAL NOT NULL DEFAULT 0,
	height               REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (scene_id, id),
	FOREIGN KEY (scene_id) REFERENCES scenes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_put2ds_scene ON put2ds(scene_id);
`
